package family

import (
	"context"
	"sort"
	"sync"

	"github.com/famvault/famvault/internal/domain"
)

type memoryRepository struct {
	mu       sync.RWMutex
	families map[string]Family
	members  map[string]Member
	byUser   map[string]string
}

// NewMemoryRepository builds an in-memory family store for testing and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		families: make(map[string]Family),
		members:  make(map[string]Member),
		byUser:   make(map[string]string),
	}
}

func (r *memoryRepository) CreateFamily(_ context.Context, f Family) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.families[f.ID]; exists {
		return domain.Errf(domain.ErrValidation, "FAMILY", "family %s already exists", f.ID)
	}
	r.families[f.ID] = f
	return nil
}

func (r *memoryRepository) GetFamily(_ context.Context, id string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[id]
	if !ok {
		return Family{}, domain.Errf(domain.ErrNotFound, "FAMILY", "family %s not found", id)
	}
	return f, nil
}

func (r *memoryRepository) CreateMember(_ context.Context, m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUser[m.Username]; exists {
		return domain.Errf(domain.ErrValidation, "MEMBER", "username %q is taken", m.Username)
	}
	r.members[m.ID] = m
	r.byUser[m.Username] = m.ID
	return nil
}

func (r *memoryRepository) GetMember(_ context.Context, id string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return Member{}, domain.Errf(domain.ErrNotFound, "MEMBER", "member %s not found", id)
	}
	return m, nil
}

func (r *memoryRepository) FindMemberByUsername(_ context.Context, username string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[username]
	if !ok {
		return Member{}, domain.Errf(domain.ErrNotFound, "MEMBER", "member %s not found", username)
	}
	return r.members[id], nil
}

func (r *memoryRepository) ListMembers(_ context.Context, familyID string) ([]Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var members []Member
	for _, m := range r.members {
		if m.FamilyID == familyID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}
