package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/services"
)

func TestProjectHandler_CreateScenario(t *testing.T) {
	s := newTestServer(t, 2)

	p := s.createProject(1, gin.H{"user_id": 2, "rol": "member"})

	assert.Equal(t, "Apollo", p.Title)
	assert.Equal(t, []models.Member{
		{UserID: 2, Role: models.RoleMember},
		{UserID: 1, Role: models.RoleAdmin},
	}, p.Members)
}

func TestProjectHandler_CreateValidation(t *testing.T) {
	s := newTestServer(t, 1)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing title", gin.H{"description": "d", "start_project_date": "2024-01-01", "end_project_date": "2024-01-02"}},
		{"bad role", gin.H{"title": "t", "description": "d", "start_project_date": "2024-01-01", "end_project_date": "2024-01-02",
			"members": []gin.H{{"user_id": 1, "rol": "owner"}}}},
		{"unknown user", gin.H{"title": "t", "description": "d", "start_project_date": "2024-01-01", "end_project_date": "2024-01-02",
			"members": []gin.H{{"user_id": 99, "rol": "member"}}}},
		{"bad date", gin.H{"title": "t", "description": "d", "start_project_date": "yesterday", "end_project_date": "2024-01-02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(http.MethodPost, "/api/createProject", 1, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, http.StatusBadRequest, env.Status)
			assert.NotEmpty(t, env.Message)
		})
	}

	var count int64
	require.NoError(t, s.db.Model(&models.Project{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProjectHandler_GetAndList(t *testing.T) {
	s := newTestServer(t, 3)
	p := s.createProject(1, gin.H{"user_id": 2, "rol": "member"})

	code, env := s.do(http.MethodGet, fmt.Sprintf("/api/getProject/%d", p.ID), 2, nil)
	require.Equal(t, http.StatusOK, code)
	var got projectBody
	decodeData(t, env, "project", &got)
	assert.Equal(t, p.ID, got.ID)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/getProject/%d", p.ID), 3, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/getProject/999", 1, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodGet, "/api/getProject/abc", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, "/api/getAllMyProjects", 3, nil)
	require.Equal(t, http.StatusOK, code)
	var none []projectBody
	decodeData(t, env, "projects", &none)
	assert.Empty(t, none)

	code, env = s.do(http.MethodGet, "/api/getAllMyProjects", 2, nil)
	require.Equal(t, http.StatusOK, code)
	var mine []projectBody
	decodeData(t, env, "projects", &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)
}

func TestProjectHandler_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t, 2)
	p := s.createProject(1, gin.H{"user_id": 2, "rol": "member"})
	path := fmt.Sprintf("/api/updateProject/%d", p.ID)

	code, _ := s.do(http.MethodPut, path, 2, gin.H{"title": "Gemini"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(http.MethodPut, path, 1, gin.H{"title": "Gemini", "version": p.Version})
	require.Equal(t, http.StatusOK, code, env.Message)
	var updated projectBody
	decodeData(t, env, "project", &updated)
	assert.Equal(t, "Gemini", updated.Title)

	code, env = s.do(http.MethodPut, path, 1, gin.H{"title": "Mercury", "version": p.Version})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Contains(t, env.Message, "modified by another request")

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/deleteProject/%d", p.ID), 2, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/deleteProject/%d", p.ID), 1, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "project deleted successfully", env.Message)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/getProject/%d", p.ID), 1, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProjectMemberHandler(t *testing.T) {
	s := newTestServer(t, 3)
	p := s.createProject(1)

	code, env := s.do(http.MethodPost, fmt.Sprintf("/api/addMembersToProject/%d", p.ID), 1, gin.H{
		"members": []gin.H{{"user_id": 2, "rol": "project manager"}, {"user_id": 3, "rol": "member"}},
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/project/%d/members", p.ID), 3, nil)
	require.Equal(t, http.StatusOK, code)
	var members []services.MemberDetail
	decodeData(t, env, "members", &members)
	require.Len(t, members, 3)
	assert.Equal(t, "User 2", members[1].Name)
	assert.Equal(t, models.RoleProjectManager, members[1].Role)

	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/addMembersToProject/%d", p.ID), 1, gin.H{"members": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/project/%d/member/3", p.ID), 3, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/project/%d/member/3", p.ID), 2, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var after projectBody
	decodeData(t, env, "project", &after)
	assert.Len(t, after.Members, 2)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/project/%d/member/3", p.ID), 2, nil)
	assert.Equal(t, http.StatusOK, code, "removing a non-member is a no-op")

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/project/%d/member/x", p.ID), 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestActivityHandler(t *testing.T) {
	s := newTestServer(t, 2)
	p := s.createProject(1)
	s.createTask(p.ID, 1)

	code, env := s.do(http.MethodGet, fmt.Sprintf("/api/project/%d/activity?limit=1", p.ID), 1, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var logs []models.ActivityLog
	decodeData(t, env, "activity", &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, services.ActionTaskCreated, logs[0].Action)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/project/%d/activity", p.ID), 2, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/project/%d/activity?limit=0", p.ID), 1, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/project/%d/activity?limit=1000", p.ID), 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
