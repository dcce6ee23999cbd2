package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taskhub/backend/internal/authz"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/pkg/response"
	"gorm.io/gorm"
)

type TaskService struct {
	db       *gorm.DB
	users    IdentityProvider
	activity ActivityRecorder
}

func NewTaskService(db *gorm.DB, users IdentityProvider, activity ActivityRecorder) *TaskService {
	if activity == nil {
		activity = NopRecorder()
	}
	return &TaskService{db: db, users: users, activity: activity}
}

type CreateTaskRequest struct {
	Title         string `json:"title" binding:"required,max=255"`
	Description   string `json:"description" binding:"required"`
	Complete      *bool  `json:"complete" binding:"required"`
	StartTaskDate string `json:"start_task_date"`
	EndTaskDate   string `json:"end_task_date"`
	AssignedUsers []uint `json:"assigned_users"`
}

// UpdateTaskRequest is a partial update; assignments are changed through
// AssignUser and UnassignUser only.
type UpdateTaskRequest struct {
	Title         *string `json:"title" binding:"omitempty,max=255"`
	Description   *string `json:"description"`
	Complete      *bool   `json:"complete"`
	StartTaskDate *string `json:"start_task_date"`
	EndTaskDate   *string `json:"end_task_date"`
	Version       *int    `json:"version"`
}

type AssignUserRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

const notProjectMember = "user is not associated with this project"

// Create adds a task to the project. Every assigned user must already be a
// member of the project.
func (s *TaskService) Create(ctx context.Context, projectID uint, req *CreateTaskRequest, actorID uint) (*models.Task, error) {
	project, err := loadProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessTask(project.Members, actorID) {
		return nil, response.NewForbidden(notProjectMember)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, response.NewValidation("title is required")
	}
	if req.Complete == nil {
		return nil, response.NewValidation("complete is required")
	}
	start, end, err := parseDateRange(req.StartTaskDate, req.EndTaskDate, "task")
	if err != nil {
		return nil, err
	}

	assigned := uniqueIDs(req.AssignedUsers)
	if err := s.checkAssignable(ctx, project, assigned); err != nil {
		return nil, err
	}

	task := models.Task{
		ProjectID:     project.ID,
		CreatedBy:     actorID,
		Title:         title,
		Description:   req.Description,
		Complete:      *req.Complete,
		StartTaskDate: start,
		EndTaskDate:   end,
		Version:       1,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the project may have been deleted or its members changed since the checks above
		current, err := lockProject(ctx, tx, project.ID)
		if err != nil {
			return err
		}
		if !authz.CanAccessTask(current.Members, actorID) {
			return response.NewForbidden(notProjectMember)
		}
		if err := checkMembers(current, assigned); err != nil {
			return err
		}

		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		// one insert per row keeps the id order equal to the request order
		for _, uid := range assigned {
			if err := tx.Create(&models.TaskUser{TaskID: task.ID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if response.KindOf(err) != response.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	task.AssignedUsers = assigned

	taskID := task.ID
	s.activity.Record(ctx, ActivityEvent{
		ProjectID: project.ID,
		TaskID:    &taskID,
		ActorID:   actorID,
		Action:    ActionTaskCreated,
		Detail:    map[string]interface{}{"title": task.Title, "assigned_users": assigned},
	})
	return &task, nil
}

// Get returns a task of the given project.
func (s *TaskService) Get(ctx context.Context, projectID, taskID, actorID uint) (*models.Task, error) {
	project, err := loadProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessTask(project.Members, actorID) {
		return nil, response.NewForbidden(notProjectMember)
	}

	task, err := loadTask(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != project.ID {
		return nil, response.NewNotFound("task does not belong to this project")
	}

	if err := s.fillAssignees(ctx, []*models.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) ListByProject(ctx context.Context, projectID, actorID uint) ([]models.Task, error) {
	project, err := loadProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessTask(project.Members, actorID) {
		return nil, response.NewForbidden(notProjectMember)
	}

	tasks := []models.Task{}
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	ptrs := make([]*models.Task, len(tasks))
	for i := range tasks {
		ptrs[i] = &tasks[i]
	}
	if err := s.fillAssignees(ctx, ptrs); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskService) Update(ctx context.Context, taskID uint, req *UpdateTaskRequest, actorID uint) (*models.Task, error) {
	task, project, err := s.loadForActor(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != task.Version {
		return nil, staleTask()
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, response.NewValidation("title cannot be empty")
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Complete != nil {
		updates["complete"] = *req.Complete
	}

	start, end := task.StartTaskDate, task.EndTaskDate
	if req.StartTaskDate != nil {
		if start, err = models.ParseDate(*req.StartTaskDate); err != nil {
			return nil, response.NewValidation(err.Error())
		}
		updates["start_task_date"] = start
	}
	if req.EndTaskDate != nil {
		if end, err = models.ParseDate(*req.EndTaskDate); err != nil {
			return nil, response.NewValidation(err.Error())
		}
		updates["end_task_date"] = end
	}
	if err := checkDateOrder(start, end, "task"); err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		updates["version"] = task.Version + 1
		result := s.db.WithContext(ctx).Model(&models.Task{}).
			Where("id = ? AND version = ?", task.ID, task.Version).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("update task %d: %w", task.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, staleTask()
		}

		if task, err = loadTask(ctx, s.db, taskID); err != nil {
			return nil, err
		}

		s.activity.Record(ctx, ActivityEvent{
			ProjectID: project.ID,
			TaskID:    &taskID,
			ActorID:   actorID,
			Action:    ActionTaskUpdated,
			Detail:    map[string]interface{}{"fields": changedFields(updates)},
		})
	}

	if err := s.fillAssignees(ctx, []*models.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, taskID, actorID uint) error {
	task, project, err := s.loadForActor(ctx, taskID, actorID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskUser{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, task.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete task %d: %w", task.ID, err)
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: project.ID,
		TaskID:    &taskID,
		ActorID:   actorID,
		Action:    ActionTaskDeleted,
		Detail:    map[string]interface{}{"title": task.Title},
	})
	return nil
}

// AssignUser adds targetID to the task's assignees. The target must be a
// project member and must not be assigned already.
func (s *TaskService) AssignUser(ctx context.Context, taskID, targetID, actorID uint) error {
	task, project, err := s.loadForActor(ctx, taskID, actorID)
	if err != nil {
		return err
	}
	if err := s.checkAssignable(ctx, project, []uint{targetID}); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockProject(ctx, tx, project.ID)
		if err != nil {
			return err
		}
		if !authz.CanAccessTask(current.Members, actorID) {
			return response.NewForbidden(notProjectMember)
		}
		if err := checkMembers(current, []uint{targetID}); err != nil {
			return err
		}

		assigned, err := isAssigned(ctx, tx, task.ID, targetID)
		if err != nil {
			return err
		}
		if assigned {
			return alreadyAssigned()
		}
		return tx.Create(&models.TaskUser{TaskID: task.ID, UserID: targetID}).Error
	})
	if err != nil {
		if response.KindOf(err) != response.KindInternal {
			return err
		}
		// a concurrent request may have inserted the same pair
		if again, checkErr := isAssigned(ctx, s.db, task.ID, targetID); checkErr == nil && again {
			return alreadyAssigned()
		}
		return fmt.Errorf("assign user %d to task %d: %w", targetID, task.ID, err)
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: project.ID,
		TaskID:    &taskID,
		ActorID:   actorID,
		Action:    ActionTaskUserAssigned,
		Detail:    map[string]interface{}{"user_id": targetID},
	})
	return nil
}

func (s *TaskService) UnassignUser(ctx context.Context, taskID, targetID, actorID uint) error {
	task, project, err := s.loadForActor(ctx, taskID, actorID)
	if err != nil {
		return err
	}

	exists, err := s.users.UserExists(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		return response.NewValidation(fmt.Sprintf("invalid user id: %d", targetID))
	}

	result := s.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", task.ID, targetID).
		Delete(&models.TaskUser{})
	if result.Error != nil {
		return fmt.Errorf("unassign user %d from task %d: %w", targetID, task.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return response.NewNotFound("user is not assigned to this task")
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: project.ID,
		TaskID:    &taskID,
		ActorID:   actorID,
		Action:    ActionTaskUserUnassigned,
		Detail:    map[string]interface{}{"user_id": targetID},
	})
	return nil
}

// AssignedUsers lists the users assigned to a task in assignment order.
func (s *TaskService) AssignedUsers(ctx context.Context, taskID, actorID uint) ([]PublicUser, error) {
	task, _, err := s.loadForActor(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}

	users := []PublicUser{}
	err = s.db.WithContext(ctx).Model(&models.User{}).
		Select("users.id, users.name, users.email").
		Joins("JOIN task_users ON task_users.user_id = users.id").
		Where("task_users.task_id = ?", task.ID).
		Order("task_users.id ASC").
		Scan(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list assigned users: %w", err)
	}
	return users, nil
}

// loadForActor loads a task and its project and checks that the actor may work on it.
func (s *TaskService) loadForActor(ctx context.Context, taskID, actorID uint) (*models.Task, *models.Project, error) {
	task, err := loadTask(ctx, s.db, taskID)
	if err != nil {
		return nil, nil, err
	}
	project, err := loadProject(ctx, s.db, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if !authz.CanAccessTask(project.Members, actorID) {
		return nil, nil, response.NewForbidden(notProjectMember)
	}
	return task, project, nil
}

// checkAssignable requires every id to resolve to a user and to be a project member.
func (s *TaskService) checkAssignable(ctx context.Context, project *models.Project, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	missing, ok, err := firstMissingUser(ctx, s.users, ids)
	if err != nil {
		return err
	}
	if ok {
		return response.NewValidation(fmt.Sprintf("invalid user id: %d", missing))
	}
	return checkMembers(project, ids)
}

func checkMembers(project *models.Project, ids []uint) error {
	for _, id := range ids {
		if !authz.IsMember(project.Members, id) {
			return response.NewValidation(fmt.Sprintf("user %d is not a member of this project", id))
		}
	}
	return nil
}

func isAssigned(ctx context.Context, db *gorm.DB, taskID, userID uint) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.TaskUser{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return count > 0, nil
}

func (s *TaskService) fillAssignees(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]uint, len(tasks))
	byID := make(map[uint]*models.Task, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		t.AssignedUsers = []uint{}
		byID[t.ID] = t
	}

	var rows []models.TaskUser
	err := s.db.WithContext(ctx).
		Where("task_id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}
	for _, row := range rows {
		if t, ok := byID[row.TaskID]; ok {
			t.AssignedUsers = append(t.AssignedUsers, row.UserID)
		}
	}
	return nil
}

func loadTask(ctx context.Context, db *gorm.DB, id uint) (*models.Task, error) {
	var task models.Task
	if err := db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("task not found")
		}
		return nil, fmt.Errorf("load task %d: %w", id, err)
	}
	return &task, nil
}

func staleTask() error {
	return response.NewConflict("task was modified by another request, reload and retry")
}

func alreadyAssigned() error {
	return response.NewConflict("user is already assigned to this task")
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
