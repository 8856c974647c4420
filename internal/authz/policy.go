// Package authz maps (actor role, family membership, action) to an
// allow/deny decision. The policy is pure: everything it needs travels in
// the ActorContext, so engines can consult it without I/O.
package authz

import (
	"github.com/famvault/famvault/internal/domain"
)

// Action names a mutating or reading operation gated by the policy.
type Action string

const (
	ActionAccountCreate    Action = "account.create"
	ActionAccountCreateOwn Action = "account.create_own"
	ActionAccountRead      Action = "account.read"
	ActionAccountClose     Action = "account.close"
	ActionAccountDeposit   Action = "account.deposit"
	ActionAccountWithdraw  Action = "account.withdraw"

	ActionTransferRequest Action = "transfer.request"
	ActionTransferApprove Action = "transfer.approve"
	ActionTransferReject  Action = "transfer.reject"
	ActionTransferCancel  Action = "transfer.cancel"
	ActionTransferRead    Action = "transfer.read"

	ActionLoanRequest Action = "loan.request"
	ActionLoanApprove Action = "loan.approve"
	ActionLoanPayment Action = "loan.payment"
	ActionLoanRead    Action = "loan.read"

	ActionListingCreate   Action = "listing.create"
	ActionListingCancel   Action = "listing.cancel"
	ActionPurchaseRequest Action = "purchase.request"
	ActionPurchaseApprove Action = "purchase.approve"
	ActionMarketRead      Action = "market.read"

	ActionMemberAdd Action = "member.add"
)

// guardianOnly lists the actions reserved for the guardian role. Everything
// else is open to any family member.
var guardianOnly = map[Action]bool{
	ActionAccountCreate:   true,
	ActionAccountClose:    true,
	ActionAccountDeposit:  true,
	ActionAccountWithdraw: true,
	ActionTransferApprove: true,
	ActionTransferReject:  true,
	ActionLoanApprove:     true,
	ActionPurchaseApprove: true,
	ActionMemberAdd:       true,
}

// Policy decides whether an actor may perform an action inside a family.
type Policy interface {
	Authorize(actor domain.ActorContext, action Action, familyID string) error
}

// RolePolicy is the production policy: the actor must belong to the target
// family, and guardian-only actions require the guardian role.
type RolePolicy struct{}

// NewRolePolicy constructs the default role-based policy.
func NewRolePolicy() RolePolicy { return RolePolicy{} }

// Authorize returns nil on allow and a Forbidden domain error on deny.
func (RolePolicy) Authorize(actor domain.ActorContext, action Action, familyID string) error {
	if actor.ID == "" {
		return domain.Errf(domain.ErrForbidden, "ACTOR", "actor identity is required")
	}
	if actor.FamilyID != familyID {
		return domain.Errf(domain.ErrForbidden, "ACTOR",
			"actor does not belong to family %s", familyID).
			WithDetails(map[string]any{"actor_family": actor.FamilyID, "target_family": familyID})
	}
	if guardianOnly[action] && !actor.IsGuardian() {
		return domain.Errf(domain.ErrForbidden, "ACTOR",
			"action %s requires the guardian role", action).
			WithDetails(map[string]any{
				"action":        string(action),
				"required_role": string(domain.RoleGuardian),
				"actual_role":   string(actor.Role),
			})
	}
	return nil
}

// AllowAll authorizes everything. Tests use it when policy outcomes are not
// the behavior under test.
type AllowAll struct{}

// Authorize always allows.
func (AllowAll) Authorize(domain.ActorContext, Action, string) error { return nil }
