package models

import "fmt"

// ProjectRole is a member's role inside one project.
type ProjectRole string

const (
	RoleAdmin          ProjectRole = "admin"
	RoleProjectManager ProjectRole = "project manager"
	RoleMember         ProjectRole = "member"
)

var roleRanks = map[ProjectRole]int{
	RoleMember:         1,
	RoleProjectManager: 2,
	RoleAdmin:          3,
}

// ParseProjectRole converts a wire value into a ProjectRole.
func ParseProjectRole(s string) (ProjectRole, error) {
	r := ProjectRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid project role: %q", s)
	}
	return r, nil
}

func (r ProjectRole) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank orders roles: member < project manager < admin. Unknown roles rank 0.
func (r ProjectRole) Rank() int {
	return roleRanks[r]
}

// IsAtLeast reports whether r carries at least the permissions of other.
func (r ProjectRole) IsAtLeast(other ProjectRole) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

func (r ProjectRole) String() string { return string(r) }
