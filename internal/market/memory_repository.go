package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/famvault/famvault/internal/domain"
)

type memoryRepository struct {
	mu        sync.RWMutex
	listings  map[string]Listing
	purchases map[string]Purchase
}

// NewMemoryRepository constructs an in-memory marketplace repository for
// tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		listings:  make(map[string]Listing),
		purchases: make(map[string]Purchase),
	}
}

func (r *memoryRepository) CreateListing(_ context.Context, l Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.listings[l.ID]; exists {
		return domain.Errf(domain.ErrValidation, "LISTING", "listing %s already exists", l.ID)
	}
	r.listings[l.ID] = l
	return nil
}

func (r *memoryRepository) GetListing(_ context.Context, id string) (Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return Listing{}, domain.Errf(domain.ErrNotFound, "LISTING", "listing %s not found", id)
	}
	return l, nil
}

func (r *memoryRepository) ListListings(_ context.Context, familyID string) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Listing
	for _, l := range r.listings {
		if l.FamilyID == familyID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) UpdateListingStatus(_ context.Context, id string, from, to ListingStatus) (Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return Listing{}, domain.Errf(domain.ErrNotFound, "LISTING", "listing %s not found", id)
	}
	if l.Status != from {
		return Listing{}, domain.Errf(domain.ErrConcurrentModification, "LISTING",
			"listing %s no longer in status %s", id, from)
	}
	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	r.listings[id] = l
	return l, nil
}

func (r *memoryRepository) CreatePurchase(_ context.Context, p Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.purchases[p.ID]; exists {
		return domain.Errf(domain.ErrValidation, "PURCHASE", "purchase %s already exists", p.ID)
	}
	r.purchases[p.ID] = p
	return nil
}

func (r *memoryRepository) GetPurchase(_ context.Context, id string) (Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.purchases[id]
	if !ok {
		return Purchase{}, domain.Errf(domain.ErrNotFound, "PURCHASE", "purchase %s not found", id)
	}
	return p, nil
}

func (r *memoryRepository) UpdatePurchase(_ context.Context, p Purchase, fromStatus PurchaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.purchases[p.ID]
	if !ok {
		return domain.Errf(domain.ErrNotFound, "PURCHASE", "purchase %s not found", p.ID)
	}
	if current.Status != fromStatus {
		return domain.Errf(domain.ErrConcurrentModification, "PURCHASE",
			"purchase %s no longer in status %s", p.ID, fromStatus)
	}
	p.UpdatedAt = time.Now().UTC()
	r.purchases[p.ID] = p
	return nil
}
