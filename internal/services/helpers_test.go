package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/pkg/response"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

// newTestDB opens an isolated in-memory database with the schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := models.SQLiteDSN(fmt.Sprintf("file:taskhub_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1)))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

// seedUsers creates users with ids 1..n.
func seedUsers(t *testing.T, db *gorm.DB, n int) []models.User {
	t.Helper()

	users := make([]models.User, 0, n)
	for i := 1; i <= n; i++ {
		u := models.User{
			ID:       uint(i),
			Name:     fmt.Sprintf("User %d", i),
			Email:    fmt.Sprintf("user%d@example.com", i),
			AuthType: models.AuthTypeLocal,
		}
		require.NoError(t, db.Create(&u).Error)
		users = append(users, u)
	}
	return users
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (r *recordingRecorder) Record(_ context.Context, event ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	identity *IdentityService
	projects *ProjectService
	tasks    *TaskService
	recorder *recordingRecorder
}

func newFixture(t *testing.T, users int) *fixture {
	t.Helper()

	db := newTestDB(t)
	seedUsers(t, db, users)

	identity := &IdentityService{db: db}
	recorder := &recordingRecorder{}
	return &fixture{
		db:       db,
		identity: identity,
		projects: NewProjectService(db, identity, recorder),
		tasks:    NewTaskService(db, identity, recorder),
		recorder: recorder,
	}
}

func (f *fixture) createProject(t *testing.T, creator uint, members ...MemberInput) *models.Project {
	t.Helper()

	p, err := f.projects.Create(context.Background(), &CreateProjectRequest{
		Title:            "Apollo",
		Description:      "moon landing",
		Members:          members,
		StartProjectDate: "2024-01-01",
		EndProjectDate:   "2024-12-31",
	}, creator)
	require.NoError(t, err)
	return p
}

func (f *fixture) createTask(t *testing.T, projectID, actor uint, assigned ...uint) *models.Task {
	t.Helper()

	complete := false
	task, err := f.tasks.Create(context.Background(), projectID, &CreateTaskRequest{
		Title:         "Build rocket",
		Description:   "stage one",
		Complete:      &complete,
		AssignedUsers: assigned,
	}, actor)
	require.NoError(t, err)
	return task
}

func member(id uint, role models.ProjectRole) MemberInput {
	return MemberInput{UserID: id, Role: role}
}

func requireKind(t *testing.T, err error, kind response.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, response.KindOf(err), "error: %v", err)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool     { return &b }
func intPtr(i int) *int        { return &i }
