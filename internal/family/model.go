package family

import (
	"time"

	"github.com/famvault/famvault/internal/domain"
)

// Family is the top-level grouping every account and workflow belongs to.
type Family struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Member is a registered person inside a family.
type Member struct {
	ID        string
	FamilyID  string
	Username  string
	Name      string
	Role      domain.Role
	PINHash   []byte
	CreatedAt time.Time
}

// Actor converts the member to the actor identity the services consume.
func (m Member) Actor() domain.ActorContext {
	return domain.ActorContext{ID: m.ID, Role: m.Role, FamilyID: m.FamilyID}
}

// Credentials carried by a login attempt.
type Credentials struct {
	Username string
	PIN      string
}
