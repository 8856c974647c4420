package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/famvault/famvault/internal/approval"
)

// Status of a loan lifecycle.
type Status = approval.Status

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusLate      Status = "LATE"
	StatusDefaulted Status = "DEFAULTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Rules is the loan state machine: ACTIVE is only reachable from PENDING
// after both counterparties approve and the disbursement settles.
func Rules() approval.Rules {
	return approval.Rules{
		StatusPending:   {StatusActive, StatusCancelled},
		StatusActive:    {StatusLate, StatusDefaulted, StatusCompleted},
		StatusLate:      {StatusActive, StatusDefaulted, StatusCompleted},
		StatusDefaulted: {},
		StatusCompleted: {},
		StatusCancelled: {},
	}
}

// Repayment cadence.
type Schedule string

const (
	ScheduleWeekly   Schedule = "WEEKLY"
	ScheduleBiweekly Schedule = "BIWEEKLY"
	ScheduleMonthly  Schedule = "MONTHLY"
)

// ValidSchedule reports whether s is a declared cadence.
func ValidSchedule(s Schedule) bool {
	switch s {
	case ScheduleWeekly, ScheduleBiweekly, ScheduleMonthly:
		return true
	}
	return false
}

// Loan is a peer-to-peer loan between two family members. Both parties name
// the exact account the money moves through; the engine never guesses which
// of a member's accounts to use.
type Loan struct {
	ID                string
	FamilyID          string
	BorrowerID        string
	LenderID          string
	BorrowerAccountID string
	LenderAccountID   string
	Principal         int64
	InterestRate      decimal.Decimal
	TermDays          int
	Purpose           string
	Schedule          Schedule
	Status            Status
	DisbursementID    string
	AmountRepaid      int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var daysPerYear = decimal.NewFromInt(365)

// Payoff is the total owed in minor units: principal plus simple interest
// over the term, rounded half away from zero.
func (l Loan) Payoff() int64 {
	principal := decimal.NewFromInt(l.Principal)
	interest := principal.
		Mul(l.InterestRate).
		Mul(decimal.NewFromInt(int64(l.TermDays))).
		Div(daysPerYear)
	return principal.Add(interest).Round(0).IntPart()
}

// Terms are the adjustable parts of a loan an approver may override.
type Terms struct {
	InterestRate decimal.Decimal
	TermDays     int
}
