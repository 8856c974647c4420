package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
)

func newTestService() (*Service, *events.CaptureSink) {
	sink := events.NewCaptureSink()
	return NewService(NewMemoryRepository(), authz.NewRolePolicy(), sink), sink
}

func guardian() domain.ActorContext {
	return domain.ActorContext{ID: "guardian-1", Role: domain.RoleGuardian, FamilyID: "fam-1"}
}

func member(id string) domain.ActorContext {
	return domain.ActorContext{ID: id, Role: domain.RoleMember, FamilyID: "fam-1"}
}

func mustOpen(t *testing.T, svc *Service, input OpenInput) Account {
	t.Helper()
	account, err := svc.Open(context.Background(), guardian(), input)
	if err != nil {
		t.Fatalf("open account: %v", err)
	}
	return account
}

func TestOpenAndGet(t *testing.T) {
	svc, sink := newTestService()
	ctx := context.Background()

	account := mustOpen(t, svc, OpenInput{
		FamilyID: "fam-1", OwnerID: "kid-1", Name: "Spending", Kind: KindGeneral, InitialBalance: 1_000,
	})

	got, err := svc.Get(ctx, guardian(), account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Balance != 1_000 || got.Status != StatusActive {
		t.Fatalf("unexpected account: %+v", got)
	}

	kinds := sink.Kinds()
	if len(kinds) != 1 || kinds[0] != events.KindAccountCreated {
		t.Fatalf("expected account.created event, got %v", kinds)
	}
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Open(context.Background(), guardian(), OpenInput{
		FamilyID: "fam-1", OwnerID: "kid-1", Name: "X", Kind: Kind("CHECKING"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestMemberCannotOpenForOthers(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Open(context.Background(), member("kid-1"), OpenInput{
		FamilyID: "fam-1", OwnerID: "kid-2", Name: "X", Kind: KindGeneral,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestCreditAndDebit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	account := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral})

	if _, err := svc.Credit(ctx, account.ID, 500); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balance, err := svc.Debit(ctx, account.ID, 200)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance != 300 {
		t.Fatalf("expected balance 300, got %d", balance)
	}
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService()
	account := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral})

	for _, amount := range []int64{0, -10} {
		if _, err := svc.Debit(context.Background(), account.ID, amount); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("amount %d: expected ValidationError, got %v", amount, err)
		}
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	account := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 50})

	_, err := svc.Debit(ctx, account.ID, 100)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}

	got, _ := svc.Get(ctx, guardian(), account.ID)
	if got.Balance != 50 {
		t.Fatalf("balance must be unchanged, got %d", got.Balance)
	}
}

func TestAllowanceFloorEnforced(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	account := mustOpen(t, svc, OpenInput{
		FamilyID: "fam-1", OwnerID: "kid-1", Name: "Allowance", Kind: KindAllowance,
		MinBalance: 200, InitialBalance: 500,
	})

	// 500 - 301 would land below the 200 floor.
	if _, err := svc.Debit(ctx, account.ID, 301); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected floor violation, got %v", err)
	}
	if _, err := svc.Debit(ctx, account.ID, 300); err != nil {
		t.Fatalf("debit to exactly the floor must succeed: %v", err)
	}
}

func TestCanDebitMirrorsDebitGuard(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	account := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 100})

	ok, err := svc.CanDebit(ctx, account.ID, 100)
	if err != nil || !ok {
		t.Fatalf("expected CanDebit true, got %v %v", ok, err)
	}
	ok, err = svc.CanDebit(ctx, account.ID, 101)
	if err != nil || ok {
		t.Fatalf("expected CanDebit false, got %v %v", ok, err)
	}

	got, _ := svc.Get(ctx, guardian(), account.ID)
	if got.Balance != 100 {
		t.Fatalf("CanDebit must not mutate, got %d", got.Balance)
	}
}

func TestClosedAccountRejectsMutation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	account := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 100})

	if _, err := svc.Close(ctx, guardian(), account.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Credit(ctx, account.ID, 10); !errors.Is(err, domain.ErrAccountClosed) {
		t.Fatalf("expected AccountClosed on credit, got %v", err)
	}
	if _, err := svc.Debit(ctx, account.ID, 10); !errors.Is(err, domain.ErrAccountClosed) {
		t.Fatalf("expected AccountClosed on debit, got %v", err)
	}
}

func TestCloseRequiresGuardian(t *testing.T) {
	svc, _ := newTestService()
	account := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral})

	if _, err := svc.Close(context.Background(), member("kid-1"), account.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestTransferFundsConservesValue(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 1_000})
	b := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-2", Name: "B", Kind: KindGeneral, InitialBalance: 100})

	if err := svc.TransferFunds(ctx, a.ID, b.ID, 100); err != nil {
		t.Fatalf("transfer funds: %v", err)
	}

	gotA, _ := svc.Get(ctx, guardian(), a.ID)
	gotB, _ := svc.Get(ctx, guardian(), b.ID)
	if gotA.Balance != 900 || gotB.Balance != 200 {
		t.Fatalf("expected 900/200, got %d/%d", gotA.Balance, gotB.Balance)
	}
	if gotA.Balance+gotB.Balance != 1_100 {
		t.Fatalf("value not conserved: %d", gotA.Balance+gotB.Balance)
	}
}

func TestTransferFundsAtomicOnCreditFailure(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 1_000})

	// Destination does not exist: the debit leg must not stick.
	err := svc.TransferFunds(ctx, a.ID, "missing", 100)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	gotA, _ := svc.Get(ctx, guardian(), a.ID)
	if gotA.Balance != 1_000 {
		t.Fatalf("debit leaked after failed credit: %d", gotA.Balance)
	}
}

func TestConcurrentOverdrawExactlyOneSucceeds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	from := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 100})
	to1 := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-2", Name: "B", Kind: KindGeneral})
	to2 := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-3", Name: "C", Kind: KindGeneral})

	// Each transfer alone fits, together they overdraw.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []string{to1.ID, to2.ID}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.TransferFunds(ctx, from.ID, targets[i], 80)
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one InsufficientFunds, got %d failures", failures)
	}

	gotFrom, _ := svc.Get(ctx, guardian(), from.ID)
	if gotFrom.Balance != 20 {
		t.Fatalf("expected source balance 20, got %d", gotFrom.Balance)
	}
}

func TestConcurrentOppositeTransfersNoDeadlock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral, InitialBalance: 1_000})
	b := mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-2", Name: "B", Kind: KindGeneral, InitialBalance: 1_000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = svc.TransferFunds(ctx, a.ID, b.ID, 1) }()
		go func() { defer wg.Done(); _ = svc.TransferFunds(ctx, b.ID, a.ID, 1) }()
	}
	wg.Wait()

	gotA, _ := svc.Get(ctx, guardian(), a.ID)
	gotB, _ := svc.Get(ctx, guardian(), b.ID)
	if gotA.Balance+gotB.Balance != 2_000 {
		t.Fatalf("value not conserved under concurrency: %d", gotA.Balance+gotB.Balance)
	}
}

func TestMemberListSeesOnlyOwnAccounts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-1", Name: "A", Kind: KindGeneral})
	mustOpen(t, svc, OpenInput{FamilyID: "fam-1", OwnerID: "kid-2", Name: "B", Kind: KindGeneral})

	accounts, err := svc.ListFamily(ctx, member("kid-1"), "fam-1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 1 || accounts[0].OwnerID != "kid-1" {
		t.Fatalf("member must only see own accounts: %+v", accounts)
	}

	all, err := svc.ListFamily(ctx, guardian(), "fam-1", "")
	if err != nil {
		t.Fatalf("list as guardian: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("guardian must see all accounts, got %d", len(all))
	}
}
