package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/backend/internal/services"
)

func TestTaskHandler_NonMemberCannotCreate(t *testing.T) {
	s := newTestServer(t, 3)
	p := s.createProject(1, gin.H{"user_id": 2, "rol": "member"})

	code, env := s.do(http.MethodPost, fmt.Sprintf("/api/createTask/%d", p.ID), 3, gin.H{
		"title": "Sneak in", "description": "no", "complete": false,
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, http.StatusForbidden, env.Status)
}

func TestTaskHandler_CreateRequiresComplete(t *testing.T) {
	s := newTestServer(t, 1)
	p := s.createProject(1)

	code, _ := s.do(http.MethodPost, fmt.Sprintf("/api/createTask/%d", p.ID), 1, gin.H{
		"title": "t", "description": "d",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaskHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t, 2)
	p := s.createProject(1, gin.H{"user_id": 2, "rol": "member"})
	task := s.createTask(p.ID, 2, 1)
	assert.Equal(t, []uint{1}, task.AssignedUsers)

	code, env := s.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks/%d", p.ID, task.ID), 1, nil)
	require.Equal(t, http.StatusOK, code)
	var got taskBody
	decodeData(t, env, "task", &got)
	assert.Equal(t, task.ID, got.ID)

	code, env = s.do(http.MethodPut, fmt.Sprintf("/api/updateTask/%d", task.ID), 1, gin.H{"complete": true})
	require.Equal(t, http.StatusOK, code, env.Message)
	var updated taskBody
	decodeData(t, env, "task", &updated)
	assert.True(t, updated.Complete)
	assert.Equal(t, "Build rocket", updated.Title)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/getTasksByProject/%d", p.ID), 2, nil)
	require.Equal(t, http.StatusOK, code)
	var tasks []taskBody
	decodeData(t, env, "tasks", &tasks)
	require.Len(t, tasks, 1)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/deleteTask/%d", task.ID), 2, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks/%d", p.ID, task.ID), 1, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTaskHandler_AssignScenario(t *testing.T) {
	s := newTestServer(t, 2)
	p := s.createProject(1, gin.H{"user_id": 2, "rol": "member"})
	task := s.createTask(p.ID, 1)
	assignPath := fmt.Sprintf("/api/tasks/%d/assignUser", task.ID)

	code, env := s.do(http.MethodPost, assignPath, 1, gin.H{"user_id": 2})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d/assignedUsers", task.ID), 1, nil)
	require.Equal(t, http.StatusOK, code)
	var users []services.PublicUser
	decodeData(t, env, "assigned_users", &users)
	assert.Equal(t, []services.PublicUser{{ID: 2, Name: "User 2", Email: "user2@example.com"}}, users)

	code, env = s.do(http.MethodPost, assignPath, 1, gin.H{"user_id": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Equal(t, "user is already assigned to this task", env.Message)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d/unassign", task.ID), 1, gin.H{"user_id": 2})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d/unassign", task.ID), 1, gin.H{"user_id": 2})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodPost, assignPath, 1, gin.H{"user_id": 2})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, assignPath, 1, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}
