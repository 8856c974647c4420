package transfer

import (
	"time"

	"github.com/famvault/famvault/internal/approval"
)

// Categories a transfer may carry. The set is closed; requesting a transfer
// with any other category is a validation error.
const (
	CategoryTransfer         = "TRANSFER"
	CategoryDeposit          = "DEPOSIT"
	CategoryWithdrawal       = "WITHDRAWAL"
	CategoryPayment          = "PAYMENT"
	CategoryRefund           = "REFUND"
	CategoryLoanDisbursement = "LOAN_DISBURSEMENT"
	CategoryLoanRepayment    = "LOAN_REPAYMENT"
	CategoryMarketplace      = "MARKETPLACE_PURCHASE"
)

// ValidCategory reports whether the category is one of the declared set.
func ValidCategory(category string) bool {
	switch category {
	case CategoryTransfer, CategoryDeposit, CategoryWithdrawal, CategoryPayment,
		CategoryRefund, CategoryLoanDisbursement, CategoryLoanRepayment, CategoryMarketplace:
		return true
	}
	return false
}

// Transfer is a unidirectional movement of value between two accounts.
// Amount is immutable after creation; records are append-only and only ever
// status-terminated, never deleted.
type Transfer struct {
	ID            string
	FamilyID      string
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Category      string
	Memo          string
	RequesterID   string
	Status        approval.Status
	ApproverNotes string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
