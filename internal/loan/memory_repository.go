package loan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/famvault/famvault/internal/domain"
)

type memoryRepository struct {
	mu    sync.RWMutex
	loans map[string]Loan
}

// NewMemoryRepository constructs an in-memory loan repository for tests and
// dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{loans: make(map[string]Loan)}
}

func (r *memoryRepository) Create(_ context.Context, l Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loans[l.ID]; exists {
		return domain.Errf(domain.ErrValidation, "LOAN", "loan %s already exists", l.ID)
	}
	r.loans[l.ID] = l
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loans[id]
	if !ok {
		return Loan{}, domain.Errf(domain.ErrNotFound, "LOAN", "loan %s not found", id)
	}
	return l, nil
}

func (r *memoryRepository) ListByFamily(_ context.Context, familyID string) ([]Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Loan
	for _, l := range r.loans {
		if l.FamilyID == familyID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, l Loan, fromStatus Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.loans[l.ID]
	if !ok {
		return domain.Errf(domain.ErrNotFound, "LOAN", "loan %s not found", l.ID)
	}
	if current.Status != fromStatus {
		return domain.Errf(domain.ErrConcurrentModification, "LOAN",
			"loan %s no longer in status %s", l.ID, fromStatus)
	}
	l.UpdatedAt = time.Now().UTC()
	r.loans[l.ID] = l
	return nil
}
