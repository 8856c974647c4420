package market

import (
	"time"

	"github.com/famvault/famvault/internal/approval"
)

// ListingStatus of a marketplace listing.
type ListingStatus = approval.Status

const (
	ListingAvailable       ListingStatus = "AVAILABLE"
	ListingPendingApproval ListingStatus = "PENDING_APPROVAL"
	ListingPendingPayment  ListingStatus = "PENDING_PAYMENT"
	ListingSold            ListingStatus = "SOLD"
	ListingCancelled       ListingStatus = "CANCELLED"
)

// ListingRules is the listing state machine.
func ListingRules() approval.Rules {
	return approval.Rules{
		ListingAvailable:       {ListingPendingApproval, ListingPendingPayment, ListingSold, ListingCancelled},
		ListingPendingApproval: {ListingAvailable, ListingPendingPayment, ListingCancelled},
		ListingPendingPayment:  {ListingSold, ListingAvailable},
		ListingSold:            {},
		ListingCancelled:       {},
	}
}

// PurchaseStatus of a marketplace purchase.
type PurchaseStatus = approval.Status

const (
	PurchasePendingApproval PurchaseStatus = "PENDING_APPROVAL"
	PurchaseCompleted       PurchaseStatus = "COMPLETED"
	PurchaseCancelled       PurchaseStatus = "CANCELLED"
)

// PurchaseRules is the purchase state machine.
func PurchaseRules() approval.Rules {
	return approval.Rules{
		PurchasePendingApproval: {PurchaseCompleted, PurchaseCancelled},
		PurchaseCompleted:       {},
		PurchaseCancelled:       {},
	}
}

// Item conditions a seller may declare.
const (
	ConditionNew  = "NEW"
	ConditionGood = "GOOD"
	ConditionFair = "FAIR"
	ConditionWorn = "WORN"
)

// ValidCondition reports whether the condition is one of the declared set.
func ValidCondition(condition string) bool {
	switch condition {
	case ConditionNew, ConditionGood, ConditionFair, ConditionWorn:
		return true
	}
	return false
}

// Listing is an item a family member offers for sale.
type Listing struct {
	ID              string
	FamilyID        string
	SellerID        string
	SellerAccountID string
	Title           string
	Description     string
	Price           int64
	Condition       string
	Status          ListingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Purchase is a buyer's offer against a listing. The settlement transfer is
// created only on approval.
type Purchase struct {
	ID             string
	ListingID      string
	FamilyID       string
	BuyerID        string
	BuyerAccountID string
	Price          int64
	Message        string
	Notes          string
	Status         PurchaseStatus
	TransferID     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
