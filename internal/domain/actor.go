package domain

import "fmt"

// Role is the marketplace role of an authenticated user.
type Role string

const (
	RoleHousehold    Role = "household"
	RoleOrganization Role = "organization"
	RoleCollector    Role = "collector"
	RoleRecycler     Role = "recycler"
	RoleAdmin        Role = "admin"
)

// ParseRole validates a wire value.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHousehold, RoleOrganization, RoleCollector, RoleRecycler, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidActor, s)
}

// CanRequestCollections reports whether the role may schedule pickups.
func (r Role) CanRequestCollections() bool {
	switch r {
	case RoleHousehold, RoleOrganization, RoleAdmin:
		return true
	case RoleCollector, RoleRecycler:
		return false
	}
	return false
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// Validate checks that the actor carries an identity.
func (a Actor) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing actor id", ErrInvalidActor)
	}
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	return nil
}
