package market

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/famvault/famvault/internal/approval"
	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
	"github.com/famvault/famvault/internal/ledger"
	"github.com/famvault/famvault/internal/transfer"
)

// Service models a purchase as an offer, a guardian approval step and a
// settlement transfer through the transfer engine.
type Service struct {
	repo          Repository
	transfers     *transfer.Service
	accounts      *ledger.Service
	listingRules  approval.Rules
	purchaseRules approval.Rules
	policy        authz.Policy
	sink          events.Sink
}

// NewService builds the marketplace engine.
func NewService(repo Repository, transfers *transfer.Service, accounts *ledger.Service, policy authz.Policy, sink events.Sink) *Service {
	return &Service{
		repo:          repo,
		transfers:     transfers,
		accounts:      accounts,
		listingRules:  ListingRules(),
		purchaseRules: PurchaseRules(),
		policy:        policy,
		sink:          sink,
	}
}

// ListingInput captures the data needed to create a listing.
type ListingInput struct {
	SellerAccountID string
	Title           string
	Description     string
	Price           int64
	Condition       string
}

// CreateListing offers an item for sale. The seller names the account that
// receives the proceeds.
func (s *Service) CreateListing(ctx context.Context, actor domain.ActorContext, input ListingInput) (Listing, error) {
	if input.Title == "" {
		return Listing{}, domain.Errf(domain.ErrValidation, "LISTING", "title is required").
			WithDetails(map[string]any{"field": "title"})
	}
	if input.Price <= 0 {
		return Listing{}, domain.Errf(domain.ErrValidation, "LISTING",
			"price must be positive, got %d", input.Price)
	}
	if !ValidCondition(input.Condition) {
		return Listing{}, domain.Errf(domain.ErrValidation, "LISTING",
			"unknown condition %q", input.Condition)
	}

	account, err := s.accounts.Lookup(ctx, input.SellerAccountID)
	if err != nil {
		return Listing{}, err
	}
	if !account.Active() {
		return Listing{}, domain.Errf(domain.ErrAccountClosed, "ACCOUNT",
			"account %s is %s", account.ID, account.Status)
	}
	if account.OwnerID != actor.ID {
		return Listing{}, domain.Errf(domain.ErrForbidden, "LISTING",
			"proceeds account must belong to the seller")
	}
	if err := s.policy.Authorize(actor, authz.ActionListingCreate, account.FamilyID); err != nil {
		return Listing{}, err
	}

	now := time.Now().UTC()
	l := Listing{
		ID:              uuid.NewString(),
		FamilyID:        account.FamilyID,
		SellerID:        actor.ID,
		SellerAccountID: account.ID,
		Title:           input.Title,
		Description:     input.Description,
		Price:           input.Price,
		Condition:       input.Condition,
		Status:          ListingAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateListing(ctx, l); err != nil {
		return Listing{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindListingCreated,
		FamilyID:   l.FamilyID,
		EntityID:   l.ID,
		OccurredAt: now,
		Fields:     map[string]any{"price": l.Price, "seller_id": l.SellerID},
	})
	return l, nil
}

// CancelListing withdraws an AVAILABLE listing. Seller only.
func (s *Service) CancelListing(ctx context.Context, actor domain.ActorContext, id string) (Listing, error) {
	l, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionListingCancel, l.FamilyID); err != nil {
		return Listing{}, err
	}
	if l.SellerID != actor.ID {
		return Listing{}, domain.Errf(domain.ErrForbidden, "LISTING", "only the seller may cancel a listing")
	}
	if err := s.listingRules.Guard("LISTING", l.ID, l.Status, ListingCancelled); err != nil {
		return Listing{}, err
	}
	return s.repo.UpdateListingStatus(ctx, id, ListingAvailable, ListingCancelled)
}

// PurchaseInput captures a buyer's offer.
type PurchaseInput struct {
	ListingID      string
	BuyerAccountID string
	OfferedPrice   int64
	Message        string
}

// Purchase records an offer against an AVAILABLE listing at the offered
// price, or the listing price when no offer is made. No money moves yet.
func (s *Service) Purchase(ctx context.Context, actor domain.ActorContext, input PurchaseInput) (Purchase, error) {
	if input.OfferedPrice < 0 {
		return Purchase{}, domain.Errf(domain.ErrValidation, "PURCHASE", "offered price must not be negative")
	}

	l, err := s.repo.GetListing(ctx, input.ListingID)
	if err != nil {
		return Purchase{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionPurchaseRequest, l.FamilyID); err != nil {
		return Purchase{}, err
	}
	if l.Status != ListingAvailable {
		return Purchase{}, domain.Errf(domain.ErrInvalidStateTransition, "LISTING",
			"listing %s is %s, purchases require AVAILABLE", l.ID, l.Status)
	}
	if l.SellerID == actor.ID {
		return Purchase{}, domain.Errf(domain.ErrValidation, "PURCHASE", "sellers cannot buy their own listing")
	}

	account, err := s.accounts.Lookup(ctx, input.BuyerAccountID)
	if err != nil {
		return Purchase{}, err
	}
	if !account.Active() {
		return Purchase{}, domain.Errf(domain.ErrAccountClosed, "ACCOUNT",
			"account %s is %s", account.ID, account.Status)
	}
	if account.OwnerID != actor.ID {
		return Purchase{}, domain.Errf(domain.ErrForbidden, "PURCHASE",
			"payment account must belong to the buyer")
	}

	price := input.OfferedPrice
	if price == 0 {
		price = l.Price
	}

	now := time.Now().UTC()
	p := Purchase{
		ID:             uuid.NewString(),
		ListingID:      l.ID,
		FamilyID:       l.FamilyID,
		BuyerID:        actor.ID,
		BuyerAccountID: account.ID,
		Price:          price,
		Message:        input.Message,
		Status:         PurchasePendingApproval,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreatePurchase(ctx, p); err != nil {
		return Purchase{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindPurchaseRequested,
		FamilyID:   p.FamilyID,
		EntityID:   p.ID,
		OccurredAt: now,
		Fields:     map[string]any{"listing_id": p.ListingID, "price": p.Price},
	})
	return p, nil
}

// ApprovePurchase resolves a pending purchase. Denial cancels the purchase
// and leaves the listing AVAILABLE. Approval settles buyer -> seller; on
// settlement failure the purchase stays PENDING_APPROVAL and the listing
// is not marked sold.
func (s *Service) ApprovePurchase(ctx context.Context, actor domain.ActorContext, id string, approved bool, notes string) (Purchase, error) {
	p, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionPurchaseApprove, p.FamilyID); err != nil {
		return Purchase{}, err
	}

	if !approved {
		if err := s.purchaseRules.Guard("PURCHASE", p.ID, p.Status, PurchaseCancelled); err != nil {
			return Purchase{}, err
		}
		p.Status = PurchaseCancelled
		p.Notes = notes
		if err := s.repo.UpdatePurchase(ctx, p, PurchasePendingApproval); err != nil {
			return Purchase{}, err
		}
		s.sink.Publish(ctx, events.Event{
			Kind: events.KindPurchaseCancelled, FamilyID: p.FamilyID, EntityID: p.ID,
			OccurredAt: time.Now().UTC(),
		})
		return p, nil
	}

	if err := s.purchaseRules.Guard("PURCHASE", p.ID, p.Status, PurchaseCompleted); err != nil {
		return Purchase{}, err
	}

	l, err := s.repo.GetListing(ctx, p.ListingID)
	if err != nil {
		return Purchase{}, err
	}
	if l.Status != ListingAvailable {
		return Purchase{}, domain.Errf(domain.ErrInvalidStateTransition, "LISTING",
			"listing %s is %s, approval requires AVAILABLE", l.ID, l.Status)
	}

	// Claim the listing before any money moves. Every approval against this
	// listing, whether for this purchase or a rival one, serializes on the
	// compare-and-swap; the loser fails here without charging its buyer.
	if _, err := s.repo.UpdateListingStatus(ctx, l.ID, ListingAvailable, ListingPendingPayment); err != nil {
		return Purchase{}, err
	}

	settlement, err := s.transfers.Execute(ctx, actor, transfer.RequestInput{
		FromAccountID: p.BuyerAccountID,
		ToAccountID:   l.SellerAccountID,
		Amount:        p.Price,
		Category:      transfer.CategoryMarketplace,
		Memo:          fmt.Sprintf("Purchase: %s", l.Title),
	})
	if err != nil {
		// Release the claim; the purchase stays PENDING_APPROVAL and the
		// item goes back on the market.
		_, _ = s.repo.UpdateListingStatus(ctx, l.ID, ListingPendingPayment, ListingAvailable)
		return Purchase{}, err
	}

	if _, err := s.repo.UpdateListingStatus(ctx, l.ID, ListingPendingPayment, ListingSold); err != nil {
		return Purchase{}, err
	}
	p.Status = PurchaseCompleted
	p.Notes = notes
	p.TransferID = settlement.ID
	if err := s.repo.UpdatePurchase(ctx, p, PurchasePendingApproval); err != nil {
		return Purchase{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindPurchaseCompleted,
		FamilyID:   p.FamilyID,
		EntityID:   p.ID,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"transfer_id": settlement.ID, "price": p.Price},
	})
	return p, nil
}

// GetListing returns the listing if the actor belongs to its family.
func (s *Service) GetListing(ctx context.Context, actor domain.ActorContext, id string) (Listing, error) {
	l, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionMarketRead, l.FamilyID); err != nil {
		return Listing{}, err
	}
	return l, nil
}

// ListListings returns the family's listings, newest first.
func (s *Service) ListListings(ctx context.Context, actor domain.ActorContext, familyID string) ([]Listing, error) {
	if err := s.policy.Authorize(actor, authz.ActionMarketRead, familyID); err != nil {
		return nil, err
	}
	return s.repo.ListListings(ctx, familyID)
}

// GetPurchase returns the purchase if the actor belongs to its family.
func (s *Service) GetPurchase(ctx context.Context, actor domain.ActorContext, id string) (Purchase, error) {
	p, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionMarketRead, p.FamilyID); err != nil {
		return Purchase{}, err
	}
	return p, nil
}
