package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
)

// Service owns account balance invariants. It is the single point of truth
// for account state: no other component writes balances directly.
type Service struct {
	repo   Repository
	policy authz.Policy
	sink   events.Sink
	locks  *lockTable
}

// NewService builds the account ledger service.
func NewService(repo Repository, policy authz.Policy, sink events.Sink) *Service {
	return &Service{repo: repo, policy: policy, sink: sink, locks: newLockTable()}
}

// OpenInput captures data required to open an account.
type OpenInput struct {
	FamilyID       string
	OwnerID        string
	Name           string
	Kind           Kind
	MinBalance     int64
	InitialBalance int64
}

// Open provisions an account. A guardian may open an account for any family
// member; a member may open a general account for themselves.
func (s *Service) Open(ctx context.Context, actor domain.ActorContext, input OpenInput) (Account, error) {
	if !ValidKind(input.Kind) {
		return Account{}, domain.Errf(domain.ErrValidation, "ACCOUNT", "unknown account kind %q", input.Kind).
			WithDetails(map[string]any{"field": "kind", "value": string(input.Kind)})
	}
	if input.Name == "" {
		return Account{}, domain.Errf(domain.ErrValidation, "ACCOUNT", "account name is required").
			WithDetails(map[string]any{"field": "name"})
	}
	if input.InitialBalance < 0 || input.MinBalance < 0 {
		return Account{}, domain.Errf(domain.ErrValidation, "ACCOUNT", "balances must not be negative")
	}

	action := authz.ActionAccountCreate
	if actor.Role == domain.RoleMember {
		// Members may self-open a general account only.
		if input.OwnerID != actor.ID || input.Kind != KindGeneral {
			return Account{}, domain.Errf(domain.ErrForbidden, "ACCOUNT",
				"members may only open their own general account")
		}
		action = authz.ActionAccountCreateOwn
	}
	if err := s.policy.Authorize(actor, action, input.FamilyID); err != nil {
		return Account{}, err
	}

	now := time.Now().UTC()
	account := Account{
		ID:         uuid.NewString(),
		FamilyID:   input.FamilyID,
		OwnerID:    input.OwnerID,
		Name:       input.Name,
		Kind:       input.Kind,
		Balance:    input.InitialBalance,
		MinBalance: input.MinBalance,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindAccountCreated,
		FamilyID:   account.FamilyID,
		EntityID:   account.ID,
		OccurredAt: now,
		Fields:     map[string]any{"owner_id": account.OwnerID, "kind": string(account.Kind)},
	})
	return account, nil
}

// Get returns the account if the actor belongs to its family.
func (s *Service) Get(ctx context.Context, actor domain.ActorContext, id string) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionAccountRead, account.FamilyID); err != nil {
		return Account{}, err
	}
	if actor.Role == domain.RoleMember && account.OwnerID != actor.ID {
		return Account{}, domain.Errf(domain.ErrForbidden, "ACCOUNT",
			"members may only view their own accounts")
	}
	return account, nil
}

// ListFamily returns the family's accounts: all of them for a guardian,
// only the actor's own for a member. An optional kind filters the result.
func (s *Service) ListFamily(ctx context.Context, actor domain.ActorContext, familyID string, kind Kind) ([]Account, error) {
	if err := s.policy.Authorize(actor, authz.ActionAccountRead, familyID); err != nil {
		return nil, err
	}
	if kind != "" && !ValidKind(kind) {
		return nil, domain.Errf(domain.ErrValidation, "ACCOUNT", "unknown account kind %q in filter", kind)
	}

	accounts, err := s.repo.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	out := accounts[:0]
	for _, account := range accounts {
		if actor.Role == domain.RoleMember && account.OwnerID != actor.ID {
			continue
		}
		if kind != "" && account.Kind != kind {
			continue
		}
		out = append(out, account)
	}
	return out, nil
}

// Close soft-deletes the account. Guardian only; further mutation is
// rejected with AccountClosed.
func (s *Service) Close(ctx context.Context, actor domain.ActorContext, id string) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if err := s.policy.Authorize(actor, authz.ActionAccountClose, account.FamilyID); err != nil {
		return Account{}, err
	}
	if err := s.repo.UpdateStatus(ctx, id, account.Status, StatusClosed); err != nil {
		return Account{}, err
	}
	account.Status = StatusClosed

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindAccountClosed,
		FamilyID:   account.FamilyID,
		EntityID:   account.ID,
		OccurredAt: time.Now().UTC(),
	})
	return account, nil
}

// Deposit credits external cash into the account. Guardian only.
func (s *Service) Deposit(ctx context.Context, actor domain.ActorContext, id string, amount int64) (int64, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.policy.Authorize(actor, authz.ActionAccountDeposit, account.FamilyID); err != nil {
		return 0, err
	}
	return s.Credit(ctx, id, amount)
}

// Withdraw debits external cash out of the account. Guardian only.
func (s *Service) Withdraw(ctx context.Context, actor domain.ActorContext, id string, amount int64) (int64, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.policy.Authorize(actor, authz.ActionAccountWithdraw, account.FamilyID); err != nil {
		return 0, err
	}
	return s.Debit(ctx, id, amount)
}

// Credit increases the balance. Amount must be positive.
func (s *Service) Credit(ctx context.Context, id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, invalidAmount(amount)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.requireActive(ctx, id); err != nil {
		return 0, err
	}
	balance, err := s.repo.Adjust(ctx, Adjustment{AccountID: id, Delta: amount})
	if err != nil {
		return 0, err
	}
	s.publishBalance(ctx, id, balance)
	return balance, nil
}

// Debit decreases the balance, honoring the account-kind floor.
func (s *Service) Debit(ctx context.Context, id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, invalidAmount(amount)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.requireActive(ctx, id); err != nil {
		return 0, err
	}
	balance, err := s.repo.Adjust(ctx, Adjustment{AccountID: id, Delta: -amount})
	if err != nil {
		return 0, err
	}
	s.publishBalance(ctx, id, balance)
	return balance, nil
}

// CanDebit mirrors the Debit guard without mutating. It is advisory: the
// authoritative check runs again inside the adjustment itself.
func (s *Service) CanDebit(ctx context.Context, id string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, invalidAmount(amount)
	}
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !account.Active() {
		return false, closedErr(account)
	}
	return account.Balance-amount >= account.Floor(), nil
}

// TransferFunds is the settlement primitive: one atomic debit+credit pair.
// Both legs commit or neither does, so total value across the two accounts
// is conserved.
func (s *Service) TransferFunds(ctx context.Context, fromID, toID string, amount int64) error {
	if amount <= 0 {
		return invalidAmount(amount)
	}
	if fromID == toID {
		return domain.Errf(domain.ErrValidation, "TRANSFER", "source and destination accounts must differ")
	}
	unlock := s.locks.lockPair(fromID, toID)
	defer unlock()

	if err := s.requireActive(ctx, fromID); err != nil {
		return err
	}
	if err := s.requireActive(ctx, toID); err != nil {
		return err
	}

	err := s.repo.AdjustPair(ctx,
		Adjustment{AccountID: fromID, Delta: -amount},
		Adjustment{AccountID: toID, Delta: amount},
	)
	if err != nil {
		return err
	}

	if from, gerr := s.repo.Get(ctx, fromID); gerr == nil {
		s.publishBalance(ctx, fromID, from.Balance)
	}
	if to, gerr := s.repo.Get(ctx, toID); gerr == nil {
		s.publishBalance(ctx, toID, to.Balance)
	}
	return nil
}

// Lookup fetches an account without a policy check. Engines call it after
// running their own authorization.
func (s *Service) Lookup(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) requireActive(ctx context.Context, id string) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !account.Active() {
		return closedErr(account)
	}
	return nil
}

func (s *Service) publishBalance(ctx context.Context, id string, balance int64) {
	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindBalanceUpdated,
		EntityID:   id,
		OccurredAt: time.Now().UTC(),
		Fields:     map[string]any{"balance": balance},
	})
}

func invalidAmount(amount int64) error {
	return domain.Errf(domain.ErrValidation, "ACCOUNT", "amount must be positive, got %d", amount).
		WithDetails(map[string]any{"field": "amount", "value": amount})
}

func closedErr(account Account) error {
	return domain.Errf(domain.ErrAccountClosed, "ACCOUNT",
		"account %s is %s", account.ID, account.Status).
		WithDetails(map[string]any{"account_id": account.ID, "status": string(account.Status)})
}
