package transfer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/famvault/famvault/internal/approval"
	"github.com/famvault/famvault/internal/domain"
)

type memoryRepository struct {
	mu        sync.RWMutex
	transfers map[string]Transfer
}

// NewMemoryRepository constructs an in-memory transfer repository for tests
// and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{transfers: make(map[string]Transfer)}
}

func (r *memoryRepository) Create(_ context.Context, t Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transfers[t.ID]; exists {
		return domain.Errf(domain.ErrValidation, "TRANSFER", "transfer %s already exists", t.ID)
	}
	r.transfers[t.ID] = t
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	if !ok {
		return Transfer{}, domain.Errf(domain.ErrNotFound, "TRANSFER", "transfer %s not found", id)
	}
	return t, nil
}

func (r *memoryRepository) ListByFamily(_ context.Context, familyID string) ([]Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transfer
	for _, t := range r.transfers {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *memoryRepository) ListByAccount(_ context.Context, accountID string) ([]Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transfer
	for _, t := range r.transfers {
		if t.FromAccountID == accountID || t.ToAccountID == accountID {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, from, to approval.Status, notes string) (Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return Transfer{}, domain.Errf(domain.ErrNotFound, "TRANSFER", "transfer %s not found", id)
	}
	if t.Status != from {
		return Transfer{}, domain.Errf(domain.ErrConcurrentModification, "TRANSFER",
			"transfer %s no longer in status %s", id, from)
	}
	t.Status = to
	if notes != "" {
		t.ApproverNotes = notes
	}
	t.UpdatedAt = time.Now().UTC()
	r.transfers[id] = t
	return t, nil
}

func sortNewestFirst(ts []Transfer) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].CreatedAt.After(ts[j].CreatedAt) })
}
