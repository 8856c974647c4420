package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/famvault/famvault/internal/domain"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository constructs a concurrency-safe in-memory account
// repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.ID]; exists {
		return domain.Errf(domain.ErrValidation, "ACCOUNT", "account %s already exists", account.ID)
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	if !ok {
		return Account{}, domain.Errf(domain.ErrNotFound, "ACCOUNT", "account %s not found", id)
	}
	return account, nil
}

func (r *memoryRepository) ListByFamily(_ context.Context, familyID string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Account
	for _, account := range r.accounts {
		if account.FamilyID == familyID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Account
	for _, account := range r.accounts {
		if account.OwnerID == ownerID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, from, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return domain.Errf(domain.ErrNotFound, "ACCOUNT", "account %s not found", id)
	}
	if account.Status != from {
		return domain.Errf(domain.ErrConcurrentModification, "ACCOUNT",
			"account %s no longer in status %s", id, from)
	}
	account.Status = to
	account.UpdatedAt = time.Now().UTC()
	r.accounts[id] = account
	return nil
}

func (r *memoryRepository) Adjust(_ context.Context, adj Adjustment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, err := r.applyLocked(adj)
	if err != nil {
		return 0, err
	}
	r.accounts[adj.AccountID] = account
	return account.Balance, nil
}

// AdjustPair applies both deltas under a single lock so a concurrent reader
// never observes the debit without the credit.
func (r *memoryRepository) AdjustPair(_ context.Context, debit, credit Adjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	debited, err := r.applyLocked(debit)
	if err != nil {
		return err
	}
	credited, err := r.applyLocked(credit)
	if err != nil {
		return err
	}
	r.accounts[debit.AccountID] = debited
	r.accounts[credit.AccountID] = credited
	return nil
}

func (r *memoryRepository) applyLocked(adj Adjustment) (Account, error) {
	account, ok := r.accounts[adj.AccountID]
	if !ok {
		return Account{}, domain.Errf(domain.ErrNotFound, "ACCOUNT", "account %s not found", adj.AccountID)
	}
	next := account.Balance + adj.Delta
	if adj.Delta < 0 && next < account.Floor() {
		return Account{}, domain.Errf(domain.ErrInsufficientFunds, "ACCOUNT",
			"available %d, required %d, floor %d", account.Balance, -adj.Delta, account.Floor()).
			WithDetails(map[string]any{
				"account_id": adj.AccountID,
				"available":  account.Balance,
				"required":   -adj.Delta,
				"floor":      account.Floor(),
			})
	}
	account.Balance = next
	account.UpdatedAt = time.Now().UTC()
	return account, nil
}
