package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/famvault/famvault/internal/approval"
	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
	"github.com/famvault/famvault/internal/ledger"
)

// Service orchestrates a single movement of value between two accounts
// through the approval gate. Settlement is the only path that mutates
// balances for a transfer.
type Service struct {
	repo     Repository
	accounts *ledger.Service
	rules    approval.Rules
	policy   authz.Policy
	sink     events.Sink
}

// NewService builds the transfer engine.
func NewService(repo Repository, accounts *ledger.Service, policy authz.Policy, sink events.Sink) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		rules:    approval.TransferRules(),
		policy:   policy,
		sink:     sink,
	}
}

// RequestInput captures the data needed to request a transfer.
type RequestInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Category      string
	Memo          string
}

// Request validates the movement and records it as REQUESTED. No balance
// changes until approval settles it.
func (s *Service) Request(ctx context.Context, actor domain.ActorContext, input RequestInput) (Transfer, error) {
	if input.Amount <= 0 {
		return Transfer{}, domain.Errf(domain.ErrValidation, "TRANSFER",
			"amount must be positive, got %d", input.Amount).
			WithDetails(map[string]any{"field": "amount", "value": input.Amount})
	}
	if input.FromAccountID == input.ToAccountID {
		return Transfer{}, domain.Errf(domain.ErrValidation, "TRANSFER",
			"source and destination accounts must differ")
	}
	if input.Category == "" {
		input.Category = CategoryTransfer
	}
	if !ValidCategory(input.Category) {
		return Transfer{}, domain.Errf(domain.ErrValidation, "TRANSFER",
			"unknown category %q", input.Category).
			WithDetails(map[string]any{"field": "category", "value": input.Category})
	}

	from, err := s.activeAccount(ctx, input.FromAccountID)
	if err != nil {
		return Transfer{}, err
	}
	to, err := s.activeAccount(ctx, input.ToAccountID)
	if err != nil {
		return Transfer{}, err
	}
	if from.FamilyID != to.FamilyID {
		return Transfer{}, domain.Errf(domain.ErrValidation, "TRANSFER",
			"accounts belong to different families")
	}

	if err := s.policy.Authorize(actor, authz.ActionTransferRequest, from.FamilyID); err != nil {
		return Transfer{}, err
	}
	if actor.Role == domain.RoleMember && from.OwnerID != actor.ID {
		return Transfer{}, domain.Errf(domain.ErrForbidden, "TRANSFER",
			"members may only move money out of their own accounts")
	}

	// Advisory pre-flight; the authoritative check runs at settlement.
	ok, err := s.accounts.CanDebit(ctx, from.ID, input.Amount)
	if err != nil {
		return Transfer{}, err
	}
	if !ok {
		return Transfer{}, domain.Errf(domain.ErrInsufficientFunds, "TRANSFER",
			"available %d, required %d", from.Balance, input.Amount).
			WithDetails(map[string]any{"available": from.Balance, "required": input.Amount})
	}

	now := time.Now().UTC()
	t := Transfer{
		ID:            uuid.NewString(),
		FamilyID:      from.FamilyID,
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        input.Amount,
		Category:      input.Category,
		Memo:          input.Memo,
		RequesterID:   actor.ID,
		Status:        approval.StatusRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Transfer{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindTransferRequested,
		FamilyID:   t.FamilyID,
		EntityID:   t.ID,
		OccurredAt: now,
		Fields:     map[string]any{"amount": t.Amount, "category": t.Category},
	})
	return t, nil
}

// Approve drives the transfer REQUESTED -> APPROVED -> COMPLETED, settling
// the debit+credit pair in between. Approving an already-COMPLETED transfer
// is a no-op success so retried approval calls cannot double-spend.
func (s *Service) Approve(ctx context.Context, actor domain.ActorContext, id, notes string) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionTransferApprove, t.FamilyID); err != nil {
		return Transfer{}, err
	}
	if t.Status == approval.StatusCompleted {
		return t, nil
	}
	if err := s.rules.Guard("TRANSFER", t.ID, t.Status, approval.StatusApproved); err != nil {
		return Transfer{}, err
	}

	// Claim the settlement slot first; a concurrent approver loses the CAS
	// and gets ConcurrentModification instead of settling twice.
	t, err = s.repo.UpdateStatus(ctx, id, approval.StatusRequested, approval.StatusApproved, "")
	if err != nil {
		return Transfer{}, err
	}

	if err := s.accounts.TransferFunds(ctx, t.FromAccountID, t.ToAccountID, t.Amount); err != nil {
		// Compensation, not a gate transition: release the claim so the
		// caller can retry once the underlying condition clears.
		if _, revertErr := s.repo.UpdateStatus(ctx, id, approval.StatusApproved, approval.StatusRequested, ""); revertErr != nil {
			return Transfer{}, revertErr
		}
		return Transfer{}, err
	}

	t, err = s.repo.UpdateStatus(ctx, id, approval.StatusApproved, approval.StatusCompleted, notes)
	if err != nil {
		return Transfer{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindTransferCompleted,
		FamilyID:   t.FamilyID,
		EntityID:   t.ID,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"amount": t.Amount, "category": t.Category},
	})
	return t, nil
}

// Execute requests and immediately settles a transfer in one call. The loan
// and marketplace engines use it for disbursements, repayments and purchase
// settlements whose approval already happened at their own level; the
// transfer-approval role check is therefore skipped, but the request-side
// validation and ownership rules still apply. A failed settlement cancels
// the created transfer so no dangling request is left behind.
func (s *Service) Execute(ctx context.Context, actor domain.ActorContext, input RequestInput) (Transfer, error) {
	t, err := s.Request(ctx, actor, input)
	if err != nil {
		return Transfer{}, err
	}

	t, err = s.repo.UpdateStatus(ctx, t.ID, approval.StatusRequested, approval.StatusApproved, "")
	if err != nil {
		return Transfer{}, err
	}

	if err := s.accounts.TransferFunds(ctx, t.FromAccountID, t.ToAccountID, t.Amount); err != nil {
		// Walk back along declared edges so stored history never shows a
		// transition outside the state machine.
		if _, revertErr := s.repo.UpdateStatus(ctx, t.ID, approval.StatusApproved, approval.StatusRequested, ""); revertErr == nil {
			_, _ = s.repo.UpdateStatus(ctx, t.ID, approval.StatusRequested, approval.StatusCancelled, "")
		}
		return Transfer{}, err
	}

	t, err = s.repo.UpdateStatus(ctx, t.ID, approval.StatusApproved, approval.StatusCompleted, "")
	if err != nil {
		return Transfer{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindTransferCompleted,
		FamilyID:   t.FamilyID,
		EntityID:   t.ID,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"amount": t.Amount, "category": t.Category},
	})
	return t, nil
}

// Reject terminates a REQUESTED transfer without moving money.
func (s *Service) Reject(ctx context.Context, actor domain.ActorContext, id, reason string) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionTransferReject, t.FamilyID); err != nil {
		return Transfer{}, err
	}
	if err := s.rules.Guard("TRANSFER", t.ID, t.Status, approval.StatusRejected); err != nil {
		return Transfer{}, err
	}

	t, err = s.repo.UpdateStatus(ctx, id, approval.StatusRequested, approval.StatusRejected, reason)
	if err != nil {
		return Transfer{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindTransferRejected,
		FamilyID:   t.FamilyID,
		EntityID:   t.ID,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"reason": reason},
	})
	return t, nil
}

// Cancel lets the requester withdraw their own transfer while it is still
// REQUESTED.
func (s *Service) Cancel(ctx context.Context, actor domain.ActorContext, id string) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionTransferCancel, t.FamilyID); err != nil {
		return Transfer{}, err
	}
	if t.RequesterID != actor.ID {
		return Transfer{}, domain.Errf(domain.ErrForbidden, "TRANSFER",
			"only the requester may cancel a transfer")
	}
	if err := s.rules.Guard("TRANSFER", t.ID, t.Status, approval.StatusCancelled); err != nil {
		return Transfer{}, err
	}

	t, err = s.repo.UpdateStatus(ctx, id, approval.StatusRequested, approval.StatusCancelled, "")
	if err != nil {
		return Transfer{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindTransferCancelled,
		FamilyID:   t.FamilyID,
		EntityID:   t.ID,
		OccurredAt: time.Now().UTC(),
	})
	return t, nil
}

// Get returns the transfer if the actor belongs to its family.
func (s *Service) Get(ctx context.Context, actor domain.ActorContext, id string) (Transfer, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionTransferRead, t.FamilyID); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// ListFamily returns the family's transfer history, newest first.
func (s *Service) ListFamily(ctx context.Context, actor domain.ActorContext, familyID string) ([]Transfer, error) {
	if err := s.policy.Authorize(actor, authz.ActionTransferRead, familyID); err != nil {
		return nil, err
	}
	return s.repo.ListByFamily(ctx, familyID)
}

func (s *Service) activeAccount(ctx context.Context, id string) (ledger.Account, error) {
	account, err := s.accounts.Lookup(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if !account.Active() {
		return ledger.Account{}, domain.Errf(domain.ErrAccountClosed, "ACCOUNT",
			"account %s is %s", account.ID, account.Status)
	}
	return account, nil
}
