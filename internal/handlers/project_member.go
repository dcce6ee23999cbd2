package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskhub/backend/internal/middleware"
	"github.com/taskhub/backend/internal/services"
	"github.com/taskhub/backend/pkg/response"
)

// ProjectMemberHandler serves the member list embedded in a project.
type ProjectMemberHandler struct {
	projectService *services.ProjectService
}

func NewProjectMemberHandler(projectService *services.ProjectService) *ProjectMemberHandler {
	return &ProjectMemberHandler{projectService: projectService}
}

// List returns the members of a project with their names.
// GET /api/project/:id/members
func (h *ProjectMemberHandler) List(c *gin.Context) {
	id, ok := pathID(c, "id", "project")
	if !ok {
		return
	}

	members, err := h.projectService.GetMembersWithDetails(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"members": members})
}

// Add merges members into a project.
// POST /api/addMembersToProject/:id
func (h *ProjectMemberHandler) Add(c *gin.Context) {
	id, ok := pathID(c, "id", "project")
	if !ok {
		return
	}

	var req services.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.AddMembers(c.Request.Context(), id, &req, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"project": project})
}

// Remove drops a user from a project.
// DELETE /api/project/:id/member/:user_id
func (h *ProjectMemberHandler) Remove(c *gin.Context) {
	id, ok := pathID(c, "id", "project")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id", "user")
	if !ok {
		return
	}

	project, err := h.projectService.RemoveMember(c.Request.Context(), id, userID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"project": project})
}
