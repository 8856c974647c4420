package ledger

import "time"

// Kind of an account. The set is closed; opening an account with any other
// value is a validation error.
type Kind string

const (
	// KindGeneral is the everyday spending account.
	KindGeneral Kind = "GENERAL"
	// KindAllowance is the restricted kind: a guardian-configured minimum
	// balance floor applies to every debit.
	KindAllowance Kind = "ALLOWANCE"
	// KindSavings holds long-term savings.
	KindSavings Kind = "SAVINGS"
	// KindInvestment holds invested funds.
	KindInvestment Kind = "INVESTMENT"
)

// ValidKind reports whether k is one of the declared account kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindGeneral, KindAllowance, KindSavings, KindInvestment:
		return true
	}
	return false
}

// Status of an account lifecycle.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusClosed    Status = "CLOSED"
)

// Account is a balance-holding record owned by one family member. Balances
// are integer minor units; they are never represented as floating point.
type Account struct {
	ID         string
	FamilyID   string
	OwnerID    string
	Name       string
	Kind       Kind
	Balance    int64
	MinBalance int64
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Floor returns the minimum balance the account may not go below. Only the
// allowance kind carries a configurable floor; every other kind floors at 0.
func (a Account) Floor() int64 {
	if a.Kind == KindAllowance {
		return a.MinBalance
	}
	return 0
}

// Active reports whether the account accepts mutations.
func (a Account) Active() bool { return a.Status == StatusActive }
