package authz

import (
	"errors"
	"testing"

	"github.com/famvault/famvault/internal/domain"
)

func TestGuardianAllowedEverything(t *testing.T) {
	policy := NewRolePolicy()
	guardian := domain.ActorContext{ID: "g1", Role: domain.RoleGuardian, FamilyID: "fam1"}

	for _, action := range []Action{ActionAccountCreate, ActionTransferApprove, ActionLoanApprove, ActionPurchaseApprove, ActionTransferRequest} {
		if err := policy.Authorize(guardian, action, "fam1"); err != nil {
			t.Fatalf("guardian denied %s: %v", action, err)
		}
	}
}

func TestMemberDeniedGuardianActions(t *testing.T) {
	policy := NewRolePolicy()
	member := domain.ActorContext{ID: "m1", Role: domain.RoleMember, FamilyID: "fam1"}

	for _, action := range []Action{ActionAccountCreate, ActionAccountClose, ActionTransferApprove, ActionLoanApprove, ActionPurchaseApprove} {
		err := policy.Authorize(member, action, "fam1")
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected Forbidden for member %s, got %v", action, err)
		}
	}
}

func TestMemberAllowedOwnActions(t *testing.T) {
	policy := NewRolePolicy()
	member := domain.ActorContext{ID: "m1", Role: domain.RoleMember, FamilyID: "fam1"}

	for _, action := range []Action{ActionTransferRequest, ActionTransferCancel, ActionLoanRequest, ActionPurchaseRequest, ActionListingCreate} {
		if err := policy.Authorize(member, action, "fam1"); err != nil {
			t.Fatalf("member denied %s: %v", action, err)
		}
	}
}

func TestCrossFamilyDenied(t *testing.T) {
	policy := NewRolePolicy()
	guardian := domain.ActorContext{ID: "g1", Role: domain.RoleGuardian, FamilyID: "fam1"}

	err := policy.Authorize(guardian, ActionAccountRead, "fam2")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden across families, got %v", err)
	}
}

func TestMissingIdentityDenied(t *testing.T) {
	policy := NewRolePolicy()
	if err := policy.Authorize(domain.ActorContext{}, ActionAccountRead, "fam1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden for empty actor, got %v", err)
	}
}
