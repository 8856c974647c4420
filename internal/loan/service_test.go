package loan

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

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

func (f fixture) requestLoan(t *testing.T, lenderAcct, borrowerAcct string, principal int64) Loan {
	t.Helper()
	l, err := f.svc.Request(context.Background(), member("kid-1"), RequestInput{
		BorrowerID:        "kid-1",
		LenderID:          "kid-2",
		BorrowerAccountID: borrowerAcct,
		LenderAccountID:   lenderAcct,
		Principal:         principal,
		InterestRate:      decimal.RequireFromString("0.10"),
		TermDays:          30,
		Purpose:           "bike parts",
	})
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	return l
}

func TestRequestDefaultsToMonthlySchedule(t *testing.T) {
	f := newFixture()
	borrower := f.openAccount(t, "kid-1", 100)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	if l.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", l.Status)
	}
	if l.Schedule != ScheduleMonthly {
		t.Fatalf("expected MONTHLY default, got %s", l.Schedule)
	}
	if f.balance(t, lender.ID) != 1_000 {
		t.Fatalf("request must not move money")
	}
}

func TestRequestRejectsForeignAccount(t *testing.T) {
	f := newFixture()
	borrower := f.openAccount(t, "kid-1", 100)
	other := f.openAccount(t, "kid-3", 1_000)

	_, err := f.svc.Request(context.Background(), member("kid-1"), RequestInput{
		BorrowerID: "kid-1", LenderID: "kid-2",
		BorrowerAccountID: borrower.ID, LenderAccountID: other.ID,
		Principal: 100, InterestRate: decimal.Zero, TermDays: 30,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ValidationError for account not owned by lender, got %v", err)
	}
}

func TestApproveDisbursesAndActivates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 100)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	approved, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if approved.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", approved.Status)
	}
	if approved.DisbursementID == "" {
		t.Fatalf("expected disbursement transfer id")
	}
	if f.balance(t, lender.ID) != 900 {
		t.Fatalf("expected lender 900, got %d", f.balance(t, lender.ID))
	}
	if f.balance(t, borrower.ID) != 200 {
		t.Fatalf("expected borrower 200, got %d", f.balance(t, borrower.ID))
	}
}

func TestApproveWithMissingApprovalCancels(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 100)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	cancelled, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: false})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if f.balance(t, lender.ID) != 1_000 {
		t.Fatalf("cancelled loan must not move money")
	}

	// Terminal: a later approval attempt must fail.
	if _, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true}); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
}

func TestApproveUnderfundedLenderStaysPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 100)
	lender := f.openAccount(t, "kid-2", 50)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	_, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}

	got, _ := f.svc.Get(ctx, guardian(), l.ID)
	if got.Status != StatusPending {
		t.Fatalf("loan must stay PENDING after failed disbursement, got %s", got.Status)
	}

	// Fund the lender and retry.
	if _, err := f.accounts.Credit(ctx, lender.ID, 500); err != nil {
		t.Fatalf("credit: %v", err)
	}
	retried, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true})
	if err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	if retried.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", retried.Status)
	}
}

func TestAdjustedTermsApplied(t *testing.T) {
	f := newFixture()
	borrower := f.openAccount(t, "kid-1", 100)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	approved, err := f.svc.Approve(context.Background(), guardian(), l.ID, ApproveInput{
		GuardianApproved: true,
		LenderApproved:   true,
		AdjustedTerms:    &Terms{InterestRate: decimal.RequireFromString("0.05"), TermDays: 60},
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.InterestRate.Equal(decimal.RequireFromString("0.05")) || approved.TermDays != 60 {
		t.Fatalf("adjusted terms not applied: %s %d", approved.InterestRate, approved.TermDays)
	}
}

func TestMakePaymentMovesMoneyAndCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 500)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	if _, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// borrower 600, lender 900; payoff = 100 * (1 + 0.10*30/365) = 101.

	paid, err := f.svc.MakePayment(ctx, member("kid-1"), l.ID, 50, "first half")
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if paid.Status != StatusActive || paid.AmountRepaid != 50 {
		t.Fatalf("unexpected loan after partial payment: %+v", paid)
	}
	if f.balance(t, lender.ID) != 950 {
		t.Fatalf("expected lender 950, got %d", f.balance(t, lender.ID))
	}

	done, err := f.svc.MakePayment(ctx, member("kid-1"), l.ID, 51, "rest")
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after payoff, got %s (repaid %d, payoff %d)",
			done.Status, done.AmountRepaid, done.Payoff())
	}
}

func TestOnlyBorrowerRepays(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 500)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	if _, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.svc.MakePayment(ctx, member("kid-3"), l.ID, 10, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestPaymentOnPendingLoanRejected(t *testing.T) {
	f := newFixture()
	borrower := f.openAccount(t, "kid-1", 500)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	if _, err := f.svc.MakePayment(context.Background(), member("kid-1"), l.ID, 10, ""); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
}

func TestDelinquencyTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 500)
	lender := f.openAccount(t, "kid-2", 1_000)

	l := f.requestLoan(t, lender.ID, borrower.ID, 100)
	if _, err := f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	late, err := f.svc.SetDelinquency(ctx, guardian(), l.ID, StatusLate)
	if err != nil || late.Status != StatusLate {
		t.Fatalf("expected LATE, got %v %v", late.Status, err)
	}
	defaulted, err := f.svc.SetDelinquency(ctx, guardian(), l.ID, StatusDefaulted)
	if err != nil || defaulted.Status != StatusDefaulted {
		t.Fatalf("expected DEFAULTED, got %v %v", defaulted.Status, err)
	}
	// DEFAULTED is terminal.
	if _, err := f.svc.SetDelinquency(ctx, guardian(), l.ID, StatusActive); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
}

func TestPayoffArithmetic(t *testing.T) {
	l := Loan{
		Principal:    10_000,
		InterestRate: decimal.RequireFromString("0.10"),
		TermDays:     365,
	}
	if got := l.Payoff(); got != 11_000 {
		t.Fatalf("expected payoff 11000, got %d", got)
	}

	l.TermDays = 30
	// 10000 * 0.10 * 30/365 = 82.19... -> rounds to 82.
	if got := l.Payoff(); got != 10_082 {
		t.Fatalf("expected payoff 10082, got %d", got)
	}
}

func TestConcurrentApprovalsDisburseOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	borrower := f.openAccount(t, "kid-1", 100)
	lender := f.openAccount(t, "kid-2", 1_000)
	l := f.requestLoan(t, lender.ID, borrower.ID, 100)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(ctx, guardian(), l.ID, ApproveInput{GuardianApproved: true, LenderApproved: true})
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
	if got := f.balance(t, borrower.ID); got != 200 {
		t.Fatalf("borrower balance %d, want a single disbursement (200)", got)
	}
	if got := f.balance(t, lender.ID); got != 900 {
		t.Fatalf("lender balance %d, want 900", got)
	}
	final, err := f.svc.Get(ctx, guardian(), l.ID)
	if err != nil || final.Status != StatusActive {
		t.Fatalf("expected ACTIVE loan, got %v %v", final.Status, err)
	}
}
