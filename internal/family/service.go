package family

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/famvault/famvault/internal/authz"
	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/events"
)

const minPINLength = 4

// Service manages family and member lifecycle.
type Service struct {
	repo   Repository
	policy authz.Policy
	sink   events.Sink
}

// NewService creates a family service.
func NewService(repo Repository, policy authz.Policy, sink events.Sink) *Service {
	return &Service{repo: repo, policy: policy, sink: sink}
}

// RegisterInput creates a family together with its first guardian.
type RegisterInput struct {
	FamilyName   string
	GuardianName string
	Username     string
	PIN          string
}

// Register creates a family and enrolls the registering person as its
// first guardian.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Family, Member, error) {
	if input.FamilyName == "" {
		return Family{}, Member{}, domain.Errf(domain.ErrValidation, "FAMILY", "family name is required")
	}
	if input.Username == "" {
		return Family{}, Member{}, domain.Errf(domain.ErrValidation, "MEMBER", "username is required")
	}
	hash, err := hashPIN(input.PIN)
	if err != nil {
		return Family{}, Member{}, err
	}

	now := time.Now().UTC()
	f := Family{ID: uuid.NewString(), Name: input.FamilyName, CreatedAt: now}
	if err := s.repo.CreateFamily(ctx, f); err != nil {
		return Family{}, Member{}, err
	}

	m := Member{
		ID:        uuid.NewString(),
		FamilyID:  f.ID,
		Username:  input.Username,
		Name:      input.GuardianName,
		Role:      domain.RoleGuardian,
		PINHash:   hash,
		CreatedAt: now,
	}
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return Family{}, Member{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindFamilyRegistered,
		FamilyID:   f.ID,
		EntityID:   m.ID,
		OccurredAt: now,
		Fields:     map[string]any{"family_name": f.Name},
	})
	return f, m, nil
}

// MemberInput describes a member a guardian adds to the family.
type MemberInput struct {
	Name     string
	Username string
	PIN      string
	Role     domain.Role
}

// AddMember enrolls a new member in the actor's family. Guardian only.
func (s *Service) AddMember(ctx context.Context, actor domain.ActorContext, input MemberInput) (Member, error) {
	if err := s.policy.Authorize(actor, authz.ActionMemberAdd, actor.FamilyID); err != nil {
		return Member{}, err
	}
	if input.Username == "" {
		return Member{}, domain.Errf(domain.ErrValidation, "MEMBER", "username is required")
	}
	if input.Role != domain.RoleGuardian && input.Role != domain.RoleMember {
		return Member{}, domain.Errf(domain.ErrValidation, "MEMBER", "unknown role %q", input.Role)
	}
	if _, err := s.repo.GetFamily(ctx, actor.FamilyID); err != nil {
		return Member{}, err
	}
	hash, err := hashPIN(input.PIN)
	if err != nil {
		return Member{}, err
	}

	m := Member{
		ID:        uuid.NewString(),
		FamilyID:  actor.FamilyID,
		Username:  input.Username,
		Name:      input.Name,
		Role:      input.Role,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return Member{}, err
	}

	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindMemberAdded,
		FamilyID:   m.FamilyID,
		EntityID:   m.ID,
		OccurredAt: m.CreatedAt,
		Fields:     map[string]any{"role": string(m.Role)},
	})
	return m, nil
}

// Authenticate verifies a member's credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Member, error) {
	m, err := s.repo.FindMemberByUsername(ctx, creds.Username)
	if err != nil {
		if domain.KindOf(err) == domain.ErrNotFound {
			return Member{}, badCredentials()
		}
		return Member{}, err
	}
	if err := bcrypt.CompareHashAndPassword(m.PINHash, []byte(creds.PIN)); err != nil {
		return Member{}, badCredentials()
	}
	return m, nil
}

// Member returns a member by id if the actor shares the family.
func (s *Service) Member(ctx context.Context, actor domain.ActorContext, id string) (Member, error) {
	m, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return Member{}, err
	}
	if m.FamilyID != actor.FamilyID {
		return Member{}, domain.Errf(domain.ErrForbidden, "MEMBER", "member belongs to another family")
	}
	return m, nil
}

// ListMembers returns the actor's family roster.
func (s *Service) ListMembers(ctx context.Context, actor domain.ActorContext) ([]Member, error) {
	return s.repo.ListMembers(ctx, actor.FamilyID)
}

func hashPIN(pin string) ([]byte, error) {
	if len(pin) < minPINLength {
		return nil, domain.Errf(domain.ErrValidation, "MEMBER",
			"PIN must be at least %d digits", minPINLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Persistence("MEMBER", err)
	}
	return hash, nil
}

func badCredentials() error {
	return domain.Errf(domain.ErrForbidden, "MEMBER", "invalid username or PIN")
}
