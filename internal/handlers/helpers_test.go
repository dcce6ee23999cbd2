package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/middleware"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/services"
	"github.com/taskhub/backend/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handlers-test-secret")
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, users int) *testServer {
	t.Helper()

	dsn := models.SQLiteDSN(fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1)))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	for i := 1; i <= users; i++ {
		require.NoError(t, db.Create(&models.User{
			ID:       uint(i),
			Name:     fmt.Sprintf("User %d", i),
			Email:    fmt.Sprintf("user%d@example.com", i),
			AuthType: models.AuthTypeLocal,
		}).Error)
	}

	activity := services.NewActivityService(db)
	queue := services.NewSyncQueue()
	queue.SetProcessor(activity.Process)
	recorder := services.NewActivityRecorder(queue)
	identity := services.NewIdentityService(db, &config.JWTConfig{ExpireHour: 1}, &config.LDAPConfig{})
	projects := services.NewProjectService(db, identity, recorder)
	tasks := services.NewTaskService(db, identity, recorder)

	auth := NewAuthHandler(identity)
	project := NewProjectHandler(projects)
	members := NewProjectMemberHandler(projects)
	task := NewTaskHandler(tasks)
	activityHandler := NewActivityHandler(activity)

	r := gin.New()
	r.GET("/health", NewHealthHandler(db, queue).CheckHealth)
	api := r.Group("/api")
	api.POST("/register", auth.Register)
	api.POST("/login", auth.Login)

	protected := api.Group("", middleware.AuthRequired(identity))
	protected.GET("/profile", auth.Profile)
	protected.GET("/logout", auth.Logout)
	protected.GET("/getUserByEmail", auth.GetUserByEmail)
	protected.POST("/createProject", project.Create)
	protected.PUT("/updateProject/:id", project.Update)
	protected.DELETE("/deleteProject/:id", project.Delete)
	protected.GET("/getProject/:id", project.Get)
	protected.GET("/getAllMyProjects", project.ListMine)
	protected.GET("/project/:id/members", members.List)
	protected.POST("/addMembersToProject/:id", members.Add)
	protected.DELETE("/project/:id/member/:user_id", members.Remove)
	protected.GET("/project/:id/activity", activityHandler.List)
	protected.POST("/createTask/:id", task.Create)
	protected.PUT("/updateTask/:id", task.Update)
	protected.DELETE("/deleteTask/:id", task.Delete)
	protected.GET("/getTasksByProject/:id", task.ListByProject)
	protected.GET("/projects/:project_id/tasks/:task_id", task.Get)
	protected.POST("/tasks/:id/assignUser", task.AssignUser)
	protected.DELETE("/tasks/:id/unassign", task.UnassignUser)
	protected.GET("/tasks/:id/assignedUsers", task.AssignedUsers)

	return &testServer{t: t, db: db, router: r}
}

func (s *testServer) token(userID uint) string {
	s.t.Helper()
	token, err := utils.GenerateToken(userID, fmt.Sprintf("user%d@example.com", userID), fmt.Sprintf("User %d", userID), 0, 1)
	require.NoError(s.t, err)
	return token
}

// do sends a request as userID (0 means anonymous) and decodes the envelope.
func (s *testServer) do(method, path string, userID uint, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decodeData(t *testing.T, env envelope, key string, out interface{}) {
	t.Helper()
	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	raw, ok := data[key]
	require.True(t, ok, "data has no %q key: %s", key, env.Data)
	require.NoError(t, json.Unmarshal(raw, out))
}

type projectBody struct {
	ID      uint            `json:"id"`
	Title   string          `json:"title"`
	Version int             `json:"version"`
	Members []models.Member `json:"members"`
}

type taskBody struct {
	ID            uint   `json:"id"`
	ProjectID     uint   `json:"project_id"`
	Title         string `json:"title"`
	Complete      bool   `json:"complete"`
	AssignedUsers []uint `json:"assigned_users"`
	Version       int    `json:"version"`
}

func (s *testServer) createProject(creator uint, members ...gin.H) projectBody {
	s.t.Helper()
	if members == nil {
		members = []gin.H{}
	}
	code, env := s.do(http.MethodPost, "/api/createProject", creator, gin.H{
		"title":              "Apollo",
		"description":        "moon landing",
		"members":            members,
		"start_project_date": "2024-01-01",
		"end_project_date":   "2024-12-31",
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)

	var p projectBody
	decodeData(s.t, env, "project", &p)
	return p
}

func (s *testServer) createTask(projectID, actor uint, assigned ...uint) taskBody {
	s.t.Helper()
	if assigned == nil {
		assigned = []uint{}
	}
	code, env := s.do(http.MethodPost, fmt.Sprintf("/api/createTask/%d", projectID), actor, gin.H{
		"title":          "Build rocket",
		"description":    "stage one",
		"complete":       false,
		"assigned_users": assigned,
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)

	var task taskBody
	decodeData(s.t, env, "task", &task)
	return task
}

func newRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
