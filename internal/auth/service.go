package auth

import (
	"time"

	"github.com/famvault/famvault/internal/domain"
	"github.com/famvault/famvault/internal/family"
)

// Service issues and verifies access tokens for family members.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service with the signing secret and token lifetime.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs a token carrying the member's identity, role and family.
func (s *Service) Issue(m family.Member) (Token, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	claims := map[string]any{
		"sub":    m.ID,
		"role":   string(m.Role),
		"family": m.FamilyID,
		"name":   m.Name,
		"iat":    now.Unix(),
		"exp":    exp.Unix(),
	}
	signed, err := SignHS256(claims, s.secret)
	if err != nil {
		return Token{}, domain.Persistence("TOKEN", err)
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify checks the signature and expiry and returns the actor identity
// the token carries.
func (s *Service) Verify(token string) (domain.ActorContext, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return domain.ActorContext{}, domain.Errf(domain.ErrForbidden, "TOKEN", "invalid token")
	}
	exp, _ := claims["exp"].(float64)
	if time.Now().Unix() >= int64(exp) {
		return domain.ActorContext{}, domain.Errf(domain.ErrForbidden, "TOKEN", "token expired")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	familyID, _ := claims["family"].(string)
	if sub == "" || familyID == "" {
		return domain.ActorContext{}, domain.Errf(domain.ErrForbidden, "TOKEN", "incomplete claims")
	}
	actor := domain.ActorContext{ID: sub, Role: domain.Role(role), FamilyID: familyID}
	if actor.Role != domain.RoleGuardian && actor.Role != domain.RoleMember {
		return domain.ActorContext{}, domain.Errf(domain.ErrForbidden, "TOKEN", "unknown role %q", role)
	}
	return actor, nil
}
