package domain

// Role is the caller role asserted by the identity provider.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAgent || r == RoleCustomer
}

// IsStaff reports whether the role works tickets rather than submitting them.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleAgent
}

// Actor identifies who performs an operation. ID is empty for system actors.
type Actor struct {
	ID   string
	Role Role
}

// IDPtr returns the actor id as a nullable column value.
func (a Actor) IDPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// SystemActor is used by channel adapters acting on behalf of external senders.
var SystemActor = Actor{Role: RoleAdmin}
