package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_RegisterLoginProfile(t *testing.T) {
	s := newTestServer(t, 0)

	code, env := s.do(http.MethodPost, "/api/register", 0, gin.H{
		"name":                  "Ada",
		"email":                 "ada@example.com",
		"password":              "analytical",
		"password_confirmation": "analytical",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Equal(t, http.StatusCreated, env.Status)
	assert.NotContains(t, string(env.Data), "analytical")

	code, env = s.do(http.MethodPost, "/api/register", 0, gin.H{
		"name":                  "Ada",
		"email":                 "ada@example.com",
		"password":              "analytical",
		"password_confirmation": "analytical",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "email has already been taken", env.Message)

	code, env = s.do(http.MethodPost, "/api/login", 0, gin.H{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, http.StatusUnauthorized, env.Status)

	code, env = s.do(http.MethodPost, "/api/login", 0, gin.H{"email": "ada@example.com", "password": "analytical"})
	require.Equal(t, http.StatusOK, code, env.Message)

	var token string
	decodeData(t, env, "token", &token)
	assert.NotEmpty(t, token)

	req, _ := http.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := newRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ada@example.com")
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	s := newTestServer(t, 0)

	code, _ := s.do(http.MethodPost, "/api/register", 0, gin.H{
		"name":                  "Ada",
		"email":                 "not-an-email",
		"password":              "analytical",
		"password_confirmation": "analytical",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/register", 0, gin.H{
		"name":                  "Ada",
		"email":                 "ada@example.com",
		"password":              "analytical",
		"password_confirmation": "different",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthHandler_ProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, 1)

	code, _ := s.do(http.MethodGet, "/api/getAllMyProjects", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(http.MethodGet, "/api/logout", 1, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "logged out", env.Message)
}

func TestAuthHandler_LogoutRevokesToken(t *testing.T) {
	s := newTestServer(t, 2)

	code, _ := s.do(http.MethodGet, "/api/profile", 1, nil)
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(http.MethodGet, "/api/logout", 1, nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodGet, "/api/profile", 1, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, http.StatusUnauthorized, env.Status)

	code, _ = s.do(http.MethodGet, "/api/logout", 1, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// other users keep their sessions
	code, _ = s.do(http.MethodGet, "/api/profile", 2, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthHandler_GetUserByEmail(t *testing.T) {
	s := newTestServer(t, 2)

	code, env := s.do(http.MethodGet, "/api/getUserByEmail?email=user2@example.com", 1, nil)
	require.Equal(t, http.StatusOK, code)
	var id uint
	decodeData(t, env, "user_id", &id)
	assert.Equal(t, uint(2), id)

	code, _ = s.do(http.MethodGet, "/api/getUserByEmail?email=ghost@example.com", 1, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodGet, "/api/getUserByEmail", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, 0)

	w := newRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue_mode":"sync"`)
}
