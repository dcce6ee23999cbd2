package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskhub/backend/internal/authz"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/pkg/logger"
	"github.com/taskhub/backend/pkg/response"
	"gorm.io/gorm"
)

const (
	ActionProjectCreated       = "project.created"
	ActionProjectUpdated       = "project.updated"
	ActionProjectDeleted       = "project.deleted"
	ActionProjectMembersAdded  = "project.members_added"
	ActionProjectMemberRemoved = "project.member_removed"
	ActionTaskCreated          = "task.created"
	ActionTaskUpdated          = "task.updated"
	ActionTaskDeleted          = "task.deleted"
	ActionTaskUserAssigned     = "task.user_assigned"
	ActionTaskUserUnassigned   = "task.user_unassigned"
)

// ActivityEvent describes one successful mutation.
type ActivityEvent struct {
	ProjectID  uint                   `json:"project_id"`
	TaskID     *uint                  `json:"task_id,omitempty"`
	ActorID    uint                   `json:"actor_id"`
	Action     string                 `json:"action"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// ActivityRecorder receives events after the mutation has been committed.
// Recording never fails the calling operation.
type ActivityRecorder interface {
	Record(ctx context.Context, event ActivityEvent)
}

type queueRecorder struct {
	queue ActivityQueue
}

// NewActivityRecorder returns a recorder that hands events to queue.
func NewActivityRecorder(queue ActivityQueue) ActivityRecorder {
	return &queueRecorder{queue: queue}
}

func (r *queueRecorder) Record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := r.queue.Enqueue(ctx, &event); err != nil {
		logger.Error().Err(err).
			Str("action", event.Action).
			Uint("project_id", event.ProjectID).
			Msg("failed to enqueue activity event")
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, ActivityEvent) {}

// NopRecorder discards every event.
func NopRecorder() ActivityRecorder { return nopRecorder{} }

type ActivityService struct {
	db *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

type ActivityListRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Action string `form:"action"`
}

// Process persists an event. It is the processor behind both queue modes.
func (s *ActivityService) Process(ctx context.Context, event *ActivityEvent) error {
	var detail string
	if len(event.Detail) > 0 {
		b, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("encode activity detail: %w", err)
		}
		detail = string(b)
	}

	createdAt := event.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	entry := &models.ActivityLog{
		ProjectID: event.ProjectID,
		TaskID:    event.TaskID,
		ActorID:   event.ActorID,
		Action:    event.Action,
		Detail:    detail,
		CreatedAt: createdAt,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	return nil
}

// ListForProject returns the newest events of a project. Only members may read them.
func (s *ActivityService) ListForProject(ctx context.Context, projectID, actorID uint, req *ActivityListRequest) ([]models.ActivityLog, error) {
	project, err := loadProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.IsMember(project.Members, actorID) {
		return nil, response.NewForbidden("user is not a member of this project")
	}

	limit := 50
	if req != nil && req.Limit > 0 {
		limit = req.Limit
	}

	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if req != nil && req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}

	logs := []models.ActivityLog{}
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return logs, nil
}

// CleanupOld deletes events older than retentionDays and returns how many were removed.
func (s *ActivityService) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup activity: %w", result.Error)
	}
	return result.RowsAffected, nil
}
