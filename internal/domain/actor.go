package domain

// Role of a family member.
type Role string

const (
	// RoleGuardian can open and close accounts, approve transfers, loans
	// and purchases for the whole family.
	RoleGuardian Role = "GUARDIAN"
	// RoleMember can operate their own accounts and request transfers.
	RoleMember Role = "MEMBER"
)

// ActorContext identifies the caller of an engine operation. It is passed
// explicitly into every mutating call; engines never pull identity from
// ambient state.
type ActorContext struct {
	ID       string
	Role     Role
	FamilyID string
}

// IsGuardian reports whether the actor holds the guardian role.
func (a ActorContext) IsGuardian() bool { return a.Role == RoleGuardian }
