package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
	"github.com/famvault/famvault/internal/ledger"
	"github.com/famvault/famvault/internal/transfer"
)

type fixture struct {
	svc      *Service
	accounts *ledger.Service
	sink     *events.CaptureSink
}

func newFixture() fixture {
	sink := events.NewCaptureSink()
	policy := authz.NewRolePolicy()
	accounts := ledger.NewService(ledger.NewMemoryRepository(), policy, sink)
	transfers := transfer.NewService(transfer.NewMemoryRepository(), accounts, policy, sink)
	return fixture{
		svc:      NewService(NewMemoryRepository(), transfers, accounts, policy, sink),
		accounts: accounts,
		sink:     sink,
	}
}

func guardian() domain.ActorContext {
	return domain.ActorContext{ID: "guardian-1", Role: domain.RoleGuardian, FamilyID: "fam-1"}
}

func member(id string) domain.ActorContext {
	return domain.ActorContext{ID: id, Role: domain.RoleMember, FamilyID: "fam-1"}
}

func (f fixture) openAccount(t *testing.T, owner string, balance int64) ledger.Account {
	t.Helper()
	account, err := f.accounts.Open(context.Background(), guardian(), ledger.OpenInput{
		FamilyID: "fam-1", OwnerID: owner, Name: owner, Kind: ledger.KindGeneral, InitialBalance: balance,
	})
	if err != nil {
		t.Fatalf("open account: %v", err)
	}
	return account
}

func (f fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	account, err := f.accounts.Lookup(context.Background(), id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return account.Balance
}

func (f fixture) list(t *testing.T, sellerAcct string, price int64) Listing {
	t.Helper()
	l, err := f.svc.CreateListing(context.Background(), member("kid-1"), ListingInput{
		SellerAccountID: sellerAcct,
		Title:           "skateboard",
		Description:     "barely used",
		Price:           price,
		Condition:       ConditionGood,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func (f fixture) offer(t *testing.T, listingID, buyerAcct string, price int64) Purchase {
	t.Helper()
	p, err := f.svc.Purchase(context.Background(), member("kid-2"), PurchaseInput{
		ListingID: listingID, BuyerAccountID: buyerAcct, OfferedPrice: price,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	return p
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)

	cases := []struct {
		name  string
		input ListingInput
	}{
		{"missing title", ListingInput{SellerAccountID: seller.ID, Price: 50, Condition: ConditionGood}},
		{"zero price", ListingInput{SellerAccountID: seller.ID, Title: "x", Price: 0, Condition: ConditionGood}},
		{"bad condition", ListingInput{SellerAccountID: seller.ID, Title: "x", Price: 50, Condition: "MINT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateListing(context.Background(), member("kid-1"), tc.input)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestListingRequiresOwnProceedsAccount(t *testing.T) {
	f := newFixture()
	other := f.openAccount(t, "kid-2", 0)

	_, err := f.svc.CreateListing(context.Background(), member("kid-1"), ListingInput{
		SellerAccountID: other.ID, Title: "x", Price: 50, Condition: ConditionGood,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestApprovedPurchaseSettlesAndMarksSold(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 0)
	if p.Price != 50 {
		t.Fatalf("expected listing price 50, got %d", p.Price)
	}

	p, err := f.svc.ApprovePurchase(context.Background(), guardian(), p.ID, true, "enjoy")
	if err != nil {
		t.Fatalf("approve purchase: %v", err)
	}
	if p.Status != PurchaseCompleted {
		t.Fatalf("expected COMPLETED, got %s", p.Status)
	}
	if p.TransferID == "" {
		t.Fatal("expected settlement transfer id on purchase")
	}
	if got := f.balance(t, buyer.ID); got != 450 {
		t.Fatalf("buyer balance = %d, want 450", got)
	}
	if got := f.balance(t, seller.ID); got != 50 {
		t.Fatalf("seller balance = %d, want 50", got)
	}

	l, err = f.svc.GetListing(context.Background(), guardian(), l.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if l.Status != ListingSold {
		t.Fatalf("expected SOLD, got %s", l.Status)
	}
}

func TestDeniedPurchaseLeavesListingAvailable(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 0)

	p, err := f.svc.ApprovePurchase(context.Background(), guardian(), p.ID, false, "save your money")
	if err != nil {
		t.Fatalf("deny purchase: %v", err)
	}
	if p.Status != PurchaseCancelled {
		t.Fatalf("expected CANCELLED, got %s", p.Status)
	}
	if p.Notes != "save your money" {
		t.Fatalf("expected notes to be recorded, got %q", p.Notes)
	}
	if got := f.balance(t, buyer.ID); got != 500 {
		t.Fatalf("buyer balance = %d, want 500", got)
	}

	l, err = f.svc.GetListing(context.Background(), guardian(), l.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if l.Status != ListingAvailable {
		t.Fatalf("expected listing back on the market, got %s", l.Status)
	}

	// Another buyer can still purchase it.
	p2 := f.offer(t, l.ID, buyer.ID, 0)
	if p2.Status != PurchasePendingApproval {
		t.Fatalf("expected PENDING_APPROVAL, got %s", p2.Status)
	}
}

func TestUnderfundedBuyerFailsSettlementPurchaseStaysPending(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 0)

	// Drain the buyer between offer and approval.
	if err := f.accounts.TransferFunds(context.Background(), buyer.ID, seller.ID, 480); err != nil {
		t.Fatalf("drain: %v", err)
	}

	_, err := f.svc.ApprovePurchase(context.Background(), guardian(), p.ID, true, "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	got, err := f.svc.GetPurchase(context.Background(), guardian(), p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got.Status != PurchasePendingApproval {
		t.Fatalf("expected purchase still pending, got %s", got.Status)
	}
	l, _ = f.svc.GetListing(context.Background(), guardian(), l.ID)
	if l.Status != ListingAvailable {
		t.Fatalf("expected listing unchanged, got %s", l.Status)
	}
}

func TestPurchaseApproveIsGuardianOnly(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 0)

	_, err := f.svc.ApprovePurchase(context.Background(), member("kid-2"), p.ID, true, "")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSellerCannotBuyOwnListing(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 500)

	l := f.list(t, seller.ID, 50)
	_, err := f.svc.Purchase(context.Background(), member("kid-1"), PurchaseInput{
		ListingID: l.ID, BuyerAccountID: seller.ID,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPurchaseRequiresAvailableListing(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	if _, err := f.svc.CancelListing(context.Background(), member("kid-1"), l.ID); err != nil {
		t.Fatalf("cancel listing: %v", err)
	}

	_, err := f.svc.Purchase(context.Background(), member("kid-2"), PurchaseInput{
		ListingID: l.ID, BuyerAccountID: buyer.ID,
	})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}
}

func TestCancelListingSellerOnly(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)

	l := f.list(t, seller.ID, 50)
	_, err := f.svc.CancelListing(context.Background(), member("kid-2"), l.ID)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOfferAtCustomPrice(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 40)
	if p.Price != 40 {
		t.Fatalf("expected offered price 40, got %d", p.Price)
	}

	if _, err := f.svc.ApprovePurchase(context.Background(), guardian(), p.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := f.balance(t, seller.ID); got != 40 {
		t.Fatalf("seller balance = %d, want 40", got)
	}
}

func TestApprovalOnSoldListingChargesNoBuyer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seller := f.openAccount(t, "kid-1", 0)
	buyerA := f.openAccount(t, "kid-2", 500)
	buyerB := f.openAccount(t, "kid-3", 500)

	l := f.list(t, seller.ID, 50)
	pA := f.offer(t, l.ID, buyerA.ID, 0)
	pB, err := f.svc.Purchase(ctx, member("kid-3"), PurchaseInput{
		ListingID: l.ID, BuyerAccountID: buyerB.ID,
	})
	if err != nil {
		t.Fatalf("second offer: %v", err)
	}

	if _, err := f.svc.ApprovePurchase(ctx, guardian(), pA.ID, true, ""); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	_, err = f.svc.ApprovePurchase(ctx, guardian(), pB.ID, true, "")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}

	if got := f.balance(t, buyerB.ID); got != 500 {
		t.Fatalf("second buyer balance %d, want untouched 500", got)
	}
	if got := f.balance(t, seller.ID); got != 50 {
		t.Fatalf("seller balance %d, want a single sale (50)", got)
	}
	stale, err := f.svc.GetPurchase(ctx, guardian(), pB.ID)
	if err != nil || stale.Status != PurchasePendingApproval {
		t.Fatalf("expected second purchase still PENDING_APPROVAL, got %v %v", stale.Status, err)
	}
	sold, err := f.svc.GetListing(ctx, guardian(), l.ID)
	if err != nil || sold.Status != ListingSold {
		t.Fatalf("expected SOLD listing, got %v %v", sold.Status, err)
	}
}

func TestConcurrentPurchaseApprovalsSettleOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 0)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ApprovePurchase(ctx, guardian(), p.ID, true, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrConcurrentModification),
			errors.Is(err, domain.ErrInvalidStateTransition):
		default:
			t.Fatalf("unexpected approve error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one approval to win, got %d", succeeded)
	}
	if got := f.balance(t, buyer.ID); got != 450 {
		t.Fatalf("buyer balance %d, want charged once (450)", got)
	}
	if got := f.balance(t, seller.ID); got != 50 {
		t.Fatalf("seller balance %d, want 50", got)
	}
}

func TestMarketplaceEvents(t *testing.T) {
	f := newFixture()
	seller := f.openAccount(t, "kid-1", 0)
	buyer := f.openAccount(t, "kid-2", 500)

	l := f.list(t, seller.ID, 50)
	p := f.offer(t, l.ID, buyer.ID, 0)
	if _, err := f.svc.ApprovePurchase(context.Background(), guardian(), p.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	kinds := f.sink.Kinds()
	for _, want := range []string{events.KindListingCreated, events.KindPurchaseRequested, events.KindPurchaseCompleted} {
		found := false
		for _, k := range kinds {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected event %s, got %v", want, kinds)
		}
	}
}
