package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskhub/backend/internal/middleware"
	"github.com/taskhub/backend/internal/services"
	"github.com/taskhub/backend/pkg/response"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Create adds a task to a project
// POST /api/createTask/:id
func (h *TaskHandler) Create(c *gin.Context) {
	projectID, ok := pathID(c, "id", "project")
	if !ok {
		return
	}

	var req services.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), projectID, &req, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"task": task})
}

// Update partially updates a task
// PUT /api/updateTask/:id
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", "task")
	if !ok {
		return
	}

	var req services.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), id, &req, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"task": task})
}

// Delete deletes a task
// DELETE /api/deleteTask/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", "task")
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, "task deleted successfully")
}

// ListByProject lists the tasks of a project
// GET /api/getTasksByProject/:id
func (h *TaskHandler) ListByProject(c *gin.Context) {
	projectID, ok := pathID(c, "id", "project")
	if !ok {
		return
	}

	tasks, err := h.taskService.ListByProject(c.Request.Context(), projectID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"tasks": tasks})
}

// Get returns one task of a project
// GET /api/projects/:project_id/tasks/:task_id
func (h *TaskHandler) Get(c *gin.Context) {
	projectID, ok := pathID(c, "project_id", "project")
	if !ok {
		return
	}
	taskID, ok := pathID(c, "task_id", "task")
	if !ok {
		return
	}

	task, err := h.taskService.Get(c.Request.Context(), projectID, taskID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"task": task})
}

// AssignUser assigns a project member to a task
// POST /api/tasks/:id/assignUser
func (h *TaskHandler) AssignUser(c *gin.Context) {
	id, ok := pathID(c, "id", "task")
	if !ok {
		return
	}

	var req services.AssignUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.taskService.AssignUser(c.Request.Context(), id, req.UserID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, "user assigned to task successfully")
}

// UnassignUser removes an assignment; the user id travels in the body
// DELETE /api/tasks/:id/unassign
func (h *TaskHandler) UnassignUser(c *gin.Context) {
	id, ok := pathID(c, "id", "task")
	if !ok {
		return
	}

	var req services.AssignUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.taskService.UnassignUser(c.Request.Context(), id, req.UserID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, "user unassigned from task successfully")
}

// AssignedUsers lists the users assigned to a task
// GET /api/tasks/:id/assignedUsers
func (h *TaskHandler) AssignedUsers(c *gin.Context) {
	id, ok := pathID(c, "id", "task")
	if !ok {
		return
	}

	users, err := h.taskService.AssignedUsers(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"assigned_users": users})
}
