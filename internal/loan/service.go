package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/famvault/famvault/internal/approval"
	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
	"github.com/famvault/famvault/internal/ledger"
	"github.com/famvault/famvault/internal/transfer"
)

// Service models a loan as a disbursement transfer followed by repayment
// transfers, all settled through the transfer engine.
type Service struct {
	repo      Repository
	transfers *transfer.Service
	accounts  *ledger.Service
	rules     approval.Rules
	policy    authz.Policy
	sink      events.Sink
}

// NewService builds the loan engine.
func NewService(repo Repository, transfers *transfer.Service, accounts *ledger.Service, policy authz.Policy, sink events.Sink) *Service {
	return &Service{
		repo:      repo,
		transfers: transfers,
		accounts:  accounts,
		rules:     Rules(),
		policy:    policy,
		sink:      sink,
	}
}

// RequestInput captures the data needed to request a loan. Account ids are
// explicit: the caller names exactly which account disburses and which
// receives.
type RequestInput struct {
	BorrowerID        string
	LenderID          string
	BorrowerAccountID string
	LenderAccountID   string
	Principal         int64
	InterestRate      decimal.Decimal
	TermDays          int
	Purpose           string
	Schedule          Schedule
}

// Request records a loan in PENDING. No money moves until both
// counterparties approve.
func (s *Service) Request(ctx context.Context, actor domain.ActorContext, input RequestInput) (Loan, error) {
	if input.Principal <= 0 {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN",
			"principal must be positive, got %d", input.Principal)
	}
	if input.InterestRate.IsNegative() {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN", "interest rate must not be negative")
	}
	if input.TermDays <= 0 {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN", "term must be positive")
	}
	if input.BorrowerID == input.LenderID {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN", "borrower and lender must differ")
	}
	if input.Schedule == "" {
		input.Schedule = ScheduleMonthly
	}
	if !ValidSchedule(input.Schedule) {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN",
			"unknown repayment schedule %q", input.Schedule)
	}

	borrowerAcct, err := s.ownedActiveAccount(ctx, input.BorrowerAccountID, input.BorrowerID)
	if err != nil {
		return Loan{}, err
	}
	lenderAcct, err := s.ownedActiveAccount(ctx, input.LenderAccountID, input.LenderID)
	if err != nil {
		return Loan{}, err
	}
	if borrowerAcct.FamilyID != lenderAcct.FamilyID {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN", "accounts belong to different families")
	}

	if err := s.policy.Authorize(actor, authz.ActionLoanRequest, borrowerAcct.FamilyID); err != nil {
		return Loan{}, err
	}

	now := time.Now().UTC()
	l := Loan{
		ID:                uuid.NewString(),
		FamilyID:          borrowerAcct.FamilyID,
		BorrowerID:        input.BorrowerID,
		LenderID:          input.LenderID,
		BorrowerAccountID: input.BorrowerAccountID,
		LenderAccountID:   input.LenderAccountID,
		Principal:         input.Principal,
		InterestRate:      input.InterestRate,
		TermDays:          input.TermDays,
		Purpose:           input.Purpose,
		Schedule:          input.Schedule,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return Loan{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindLoanRequested,
		FamilyID:   l.FamilyID,
		EntityID:   l.ID,
		OccurredAt: now,
		Fields:     map[string]any{"principal": l.Principal, "borrower_id": l.BorrowerID, "lender_id": l.LenderID},
	})
	return l, nil
}

// ApproveInput carries both counterparty decisions and optional adjusted
// terms the approval may impose.
type ApproveInput struct {
	GuardianApproved bool
	LenderApproved   bool
	AdjustedTerms    *Terms
}

// Approve resolves a PENDING loan. Any missing approval cancels it; both
// approvals disburse principal lender -> borrower and activate the loan. A
// failed disbursement (for example an underfunded lender account) leaves
// the loan PENDING and surfaces the underlying error.
func (s *Service) Approve(ctx context.Context, actor domain.ActorContext, id string, input ApproveInput) (Loan, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionLoanApprove, l.FamilyID); err != nil {
		return Loan{}, err
	}

	if !input.GuardianApproved || !input.LenderApproved {
		if err := s.rules.Guard("LOAN", l.ID, l.Status, StatusCancelled); err != nil {
			return Loan{}, err
		}
		l.Status = StatusCancelled
		if err := s.repo.Update(ctx, l, StatusPending); err != nil {
			return Loan{}, err
		}
		s.sink.Publish(ctx, events.Event{
			Kind: events.KindLoanCancelled, FamilyID: l.FamilyID, EntityID: l.ID,
			OccurredAt: time.Now().UTC(),
		})
		return l, nil
	}

	if err := s.rules.Guard("LOAN", l.ID, l.Status, StatusActive); err != nil {
		return Loan{}, err
	}

	// Claim the loan before any money moves so concurrent approvals
	// serialize on this compare-and-swap; the loser fails here without
	// touching balances.
	l.Status = StatusActive
	if err := s.repo.Update(ctx, l, StatusPending); err != nil {
		return Loan{}, err
	}

	disbursement, err := s.transfers.Execute(ctx, actor, transfer.RequestInput{
		FromAccountID: l.LenderAccountID,
		ToAccountID:   l.BorrowerAccountID,
		Amount:        l.Principal,
		Category:      transfer.CategoryLoanDisbursement,
		Memo:          fmt.Sprintf("Loan disbursement: %s", l.Purpose),
	})
	if err != nil {
		// Put the claim back so the approval can be retried once the
		// underlying failure (an underfunded lender account) clears.
		l.Status = StatusPending
		_ = s.repo.Update(ctx, l, StatusActive)
		return Loan{}, err
	}

	if input.AdjustedTerms != nil {
		l.InterestRate = input.AdjustedTerms.InterestRate
		l.TermDays = input.AdjustedTerms.TermDays
	}
	l.Status = StatusActive
	l.DisbursementID = disbursement.ID
	if err := s.repo.Update(ctx, l, StatusActive); err != nil {
		return Loan{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindLoanApproved,
		FamilyID:   l.FamilyID,
		EntityID:   l.ID,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"disbursement_id": disbursement.ID, "principal": l.Principal},
	})
	return l, nil
}

// MakePayment settles a repayment transfer borrower -> lender. The loan
// completes once accumulated repayments reach the payoff amount; LATE and
// DEFAULTED transitions stay schedule-driven and live outside this call.
func (s *Service) MakePayment(ctx context.Context, actor domain.ActorContext, id string, amount int64, note string) (Loan, error) {
	if amount <= 0 {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN",
			"payment amount must be positive, got %d", amount)
	}
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionLoanPayment, l.FamilyID); err != nil {
		return Loan{}, err
	}
	if l.Status != StatusActive && l.Status != StatusLate {
		return Loan{}, domain.Errf(domain.ErrInvalidStateTransition, "LOAN",
			"loan %s is %s, payments require ACTIVE or LATE", l.ID, l.Status)
	}
	if actor.Role == domain.RoleMember && actor.ID != l.BorrowerID {
		return Loan{}, domain.Errf(domain.ErrForbidden, "LOAN", "only the borrower may repay")
	}

	memo := note
	if memo == "" {
		memo = fmt.Sprintf("Loan repayment: %s", l.Purpose)
	}
	payment, err := s.transfers.Execute(ctx, actor, transfer.RequestInput{
		FromAccountID: l.BorrowerAccountID,
		ToAccountID:   l.LenderAccountID,
		Amount:        amount,
		Category:      transfer.CategoryLoanRepayment,
		Memo:          memo,
	})
	if err != nil {
		return Loan{}, err
	}

	from := l.Status
	l.AmountRepaid += amount
	if l.AmountRepaid >= l.Payoff() {
		l.Status = StatusCompleted
	}
	if err := s.repo.Update(ctx, l, from); err != nil {
		return Loan{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindLoanPaymentMade,
		FamilyID:   l.FamilyID,
		EntityID:   l.ID,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"transfer_id": payment.ID, "amount": amount, "repaid": l.AmountRepaid},
	})
	return l, nil
}

// SetDelinquency lets a guardian mark an overdue loan LATE, or push a LATE
// loan to DEFAULTED or back to ACTIVE once it catches up.
func (s *Service) SetDelinquency(ctx context.Context, actor domain.ActorContext, id string, to Status) (Loan, error) {
	if to != StatusLate && to != StatusDefaulted && to != StatusActive {
		return Loan{}, domain.Errf(domain.ErrValidation, "LOAN", "unsupported delinquency status %q", to)
	}
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionLoanApprove, l.FamilyID); err != nil {
		return Loan{}, err
	}
	if err := s.rules.Guard("LOAN", l.ID, l.Status, to); err != nil {
		return Loan{}, err
	}

	from := l.Status
	l.Status = to
	if err := s.repo.Update(ctx, l, from); err != nil {
		return Loan{}, err
	}
	return l, nil
}

// Get returns the loan if the actor belongs to its family.
func (s *Service) Get(ctx context.Context, actor domain.ActorContext, id string) (Loan, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionLoanRead, l.FamilyID); err != nil {
		return Loan{}, err
	}
	return l, nil
}

// ListFamily returns the family's loans, newest first.
func (s *Service) ListFamily(ctx context.Context, actor domain.ActorContext, familyID string) ([]Loan, error) {
	if err := s.policy.Authorize(actor, authz.ActionLoanRead, familyID); err != nil {
		return nil, err
	}
	return s.repo.ListByFamily(ctx, familyID)
}

func (s *Service) ownedActiveAccount(ctx context.Context, accountID, ownerID string) (ledger.Account, error) {
	account, err := s.accounts.Lookup(ctx, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	if !account.Active() {
		return ledger.Account{}, domain.Errf(domain.ErrAccountClosed, "ACCOUNT",
			"account %s is %s", account.ID, account.Status)
	}
	if account.OwnerID != ownerID {
		return ledger.Account{}, domain.Errf(domain.ErrValidation, "LOAN",
			"account %s is not owned by member %s", accountID, ownerID).
			WithDetails(map[string]any{"account_id": accountID, "owner_id": ownerID})
	}
	return account, nil
}
