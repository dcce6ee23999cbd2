// Package authz decides what an actor may do inside a project. Every check is
// a pure function of the project's member list and the actor id, so callers
// must load the current list and re-check on each request.
package authz

import "github.com/taskhub/backend/internal/models"

// FindRole returns the role of the first entry for userID.
func FindRole(members models.Members, userID uint) (models.ProjectRole, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

func IsMember(members models.Members, userID uint) bool {
	_, ok := FindRole(members, userID)
	return ok
}

// CanModifyProject allows admins and project managers.
func CanModifyProject(members models.Members, actorID uint) bool {
	role, ok := FindRole(members, actorID)
	return ok && role.IsAtLeast(models.RoleProjectManager)
}

// CanDeleteProject allows admins only.
func CanDeleteProject(members models.Members, actorID uint) bool {
	role, ok := FindRole(members, actorID)
	return ok && role == models.RoleAdmin
}

// CanManageMembers governs both adding and removing members.
func CanManageMembers(members models.Members, actorID uint) bool {
	return CanModifyProject(members, actorID)
}

// CanAccessTask allows any member, regardless of role, to work on tasks.
func CanAccessTask(members models.Members, actorID uint) bool {
	return IsMember(members, actorID)
}

// CanGrantRole reports whether the actor may hand out role. Only admins may
// create other admins.
func CanGrantRole(members models.Members, actorID uint, role models.ProjectRole) bool {
	if !CanManageMembers(members, actorID) {
		return false
	}
	if role == models.RoleAdmin {
		return CanDeleteProject(members, actorID)
	}
	return role.Valid()
}

// CanChangeMember reports whether the actor may alter or remove the existing
// entry of target. Demoting or removing an admin takes an admin.
func CanChangeMember(members models.Members, actorID, target uint) bool {
	if !CanManageMembers(members, actorID) {
		return false
	}
	role, ok := FindRole(members, target)
	if ok && role == models.RoleAdmin {
		return CanDeleteProject(members, actorID)
	}
	return true
}

func HasAdmin(members models.Members) bool {
	for _, m := range members {
		if m.Role == models.RoleAdmin {
			return true
		}
	}
	return false
}
