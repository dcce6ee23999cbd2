package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taskhub/backend/internal/authz"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectService struct {
	db       *gorm.DB
	users    IdentityProvider
	activity ActivityRecorder
}

func NewProjectService(db *gorm.DB, users IdentityProvider, activity ActivityRecorder) *ProjectService {
	if activity == nil {
		activity = NopRecorder()
	}
	return &ProjectService{db: db, users: users, activity: activity}
}

// MemberInput is one requested member entry.
type MemberInput struct {
	UserID uint               `json:"user_id" binding:"required"`
	Role   models.ProjectRole `json:"rol" binding:"required,project_role"`
}

type CreateProjectRequest struct {
	Title            string        `json:"title" binding:"required,max=255"`
	Description      string        `json:"description" binding:"required"`
	Members          []MemberInput `json:"members" binding:"omitempty,dive"`
	StartProjectDate string        `json:"start_project_date" binding:"required"`
	EndProjectDate   string        `json:"end_project_date" binding:"required"`
}

// UpdateProjectRequest is a partial update; nil fields keep their value.
// Members, when present, replaces the whole list.
type UpdateProjectRequest struct {
	Title            *string        `json:"title" binding:"omitempty,max=255"`
	Description      *string        `json:"description"`
	Members          *[]MemberInput `json:"members" binding:"omitempty,dive"`
	StartProjectDate *string        `json:"start_project_date"`
	EndProjectDate   *string        `json:"end_project_date"`
	Version          *int           `json:"version"`
}

type AddMembersRequest struct {
	Members []MemberInput `json:"members" binding:"required,min=1,dive"`
}

// MemberDetail is a member entry joined with the user's name.
type MemberDetail struct {
	UserID uint               `json:"user_id"`
	Name   string             `json:"name"`
	Role   models.ProjectRole `json:"rol"`
}

const unknownUserName = "Unknown"

// Create stores a new project. The creator always ends up as the single admin
// entry for their id, appended after the other requested members.
func (s *ProjectService) Create(ctx context.Context, req *CreateProjectRequest, creatorID uint) (*models.Project, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, response.NewValidation("title is required")
	}

	start, end, err := parseDateRange(req.StartProjectDate, req.EndProjectDate, "project")
	if err != nil {
		return nil, err
	}
	if start == nil || end == nil {
		return nil, response.NewValidation("start_project_date and end_project_date are required")
	}

	members, err := s.resolveMembers(ctx, req.Members)
	if err != nil {
		return nil, err
	}
	members = append(members.Without(creatorID), models.Member{UserID: creatorID, Role: models.RoleAdmin})

	project := models.Project{
		Title:            title,
		Description:      req.Description,
		Members:          members,
		StartProjectDate: start,
		EndProjectDate:   end,
		CreatedBy:        creatorID,
		Version:          1,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&project).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: project.ID,
		ActorID:   creatorID,
		Action:    ActionProjectCreated,
		Detail:    map[string]interface{}{"title": project.Title, "members": len(project.Members)},
	})
	return &project, nil
}

// Get returns the project when the actor is one of its members.
func (s *ProjectService) Get(ctx context.Context, id, actorID uint) (*models.Project, error) {
	project, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !authz.IsMember(project.Members, actorID) {
		return nil, response.NewForbidden("user is not a member of this project")
	}
	return project, nil
}

// ListMine returns every project the actor belongs to, newest first.
func (s *ProjectService) ListMine(ctx context.Context, actorID uint) ([]models.Project, error) {
	var candidates []models.Project
	// the id must appear somewhere in the encoded list; exact filtering happens below
	err := s.db.WithContext(ctx).
		Where("members LIKE ?", "%"+strconv.FormatUint(uint64(actorID), 10)+"%").
		Order("id DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]models.Project, 0, len(candidates))
	for _, p := range candidates {
		if authz.IsMember(p.Members, actorID) {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

// Update applies a partial update. Only admins and project managers may
// modify a project; granting or revoking admin takes an admin.
func (s *ProjectService) Update(ctx context.Context, id uint, req *UpdateProjectRequest, actorID uint) (*models.Project, error) {
	project, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyProject(project.Members, actorID) {
		return nil, response.NewForbidden("only admins or project managers can update this project")
	}
	if req.Version != nil && *req.Version != project.Version {
		return nil, staleProject()
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

	start, end := project.StartProjectDate, project.EndProjectDate
	if req.StartProjectDate != nil {
		if start, err = parseRequiredDate(*req.StartProjectDate, "start_project_date"); err != nil {
			return nil, err
		}
		updates["start_project_date"] = start
	}
	if req.EndProjectDate != nil {
		if end, err = parseRequiredDate(*req.EndProjectDate, "end_project_date"); err != nil {
			return nil, err
		}
		updates["end_project_date"] = end
	}
	if err := checkDateOrder(start, end, "project"); err != nil {
		return nil, err
	}

	if req.Members != nil {
		next, err := s.resolveMembers(ctx, *req.Members)
		if err != nil {
			return nil, err
		}
		if err := checkMemberChanges(project.Members, next, actorID); err != nil {
			return nil, err
		}
		updates["members"] = next
	}

	if len(updates) == 0 {
		return project, nil
	}

	if err := s.compareAndSwap(ctx, project, updates); err != nil {
		return nil, err
	}

	updated, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: id,
		ActorID:   actorID,
		Action:    ActionProjectUpdated,
		Detail:    map[string]interface{}{"fields": changedFields(updates)},
	})
	return updated, nil
}

// Delete removes the project together with its tasks and their assignments.
func (s *ProjectService) Delete(ctx context.Context, id, actorID uint) error {
	project, err := loadProject(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !authz.CanDeleteProject(project.Members, actorID) {
		return response.NewForbidden("only admins can delete this project")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Model(&models.Task{}).Select("id").Where("project_id = ?", id)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.TaskUser{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: id,
		ActorID:   actorID,
		Action:    ActionProjectDeleted,
		Detail:    map[string]interface{}{"title": project.Title},
	})
	return nil
}

// AddMembers merges members into the list keyed by user id. An existing user
// takes the requested role; when the request repeats a user the last role wins.
func (s *ProjectService) AddMembers(ctx context.Context, id uint, req *AddMembersRequest, actorID uint) (*models.Project, error) {
	project, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageMembers(project.Members, actorID) {
		return nil, response.NewForbidden("only admins or project managers can add members")
	}
	if len(req.Members) == 0 {
		return nil, response.NewValidation("members is required")
	}

	additions, err := s.resolveMembers(ctx, req.Members)
	if err != nil {
		return nil, err
	}

	next := project.Members.Upsert(additions...)
	if err := checkMemberChanges(project.Members, next, actorID); err != nil {
		return nil, err
	}

	if err := s.compareAndSwap(ctx, project, map[string]interface{}{"members": next}); err != nil {
		return nil, err
	}

	updated, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: id,
		ActorID:   actorID,
		Action:    ActionProjectMembersAdded,
		Detail:    map[string]interface{}{"members": additions},
	})
	return updated, nil
}

// RemoveMember drops every entry for userID. Removing a user that is not a
// member leaves the project untouched.
func (s *ProjectService) RemoveMember(ctx context.Context, id, userID, actorID uint) (*models.Project, error) {
	project, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageMembers(project.Members, actorID) {
		return nil, response.NewForbidden("only admins or project managers can remove members")
	}
	if !authz.IsMember(project.Members, userID) {
		return project, nil
	}
	if !authz.CanChangeMember(project.Members, actorID, userID) {
		return nil, response.NewForbidden("only admins can remove an admin")
	}

	next := project.Members.Without(userID)
	if !authz.HasAdmin(next) {
		return nil, response.NewValidation("cannot remove the last admin of the project")
	}

	if err := s.compareAndSwap(ctx, project, map[string]interface{}{"members": next}); err != nil {
		return nil, err
	}

	updated, err := loadProject(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, ActivityEvent{
		ProjectID: id,
		ActorID:   actorID,
		Action:    ActionProjectMemberRemoved,
		Detail:    map[string]interface{}{"user_id": userID},
	})
	return updated, nil
}

// GetMembersWithDetails joins each member with its user record. Users that no
// longer resolve are reported with the name "Unknown".
func (s *ProjectService) GetMembersWithDetails(ctx context.Context, id, actorID uint) ([]MemberDetail, error) {
	project, err := s.Get(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	users, err := s.users.FindUsers(ctx, project.Members.UserIDs())
	if err != nil {
		return nil, err
	}

	details := make([]MemberDetail, 0, len(project.Members))
	for _, m := range project.Members {
		name := unknownUserName
		if u, ok := users[m.UserID]; ok {
			name = u.Name
		}
		details = append(details, MemberDetail{UserID: m.UserID, Name: name, Role: m.Role})
	}
	return details, nil
}

// resolveMembers validates roles, checks that every user exists and collapses
// repeated user ids (last role wins, first position kept).
func (s *ProjectService) resolveMembers(ctx context.Context, inputs []MemberInput) (models.Members, error) {
	list := make(models.Members, 0, len(inputs))
	ids := make([]uint, 0, len(inputs))
	for _, in := range inputs {
		if in.UserID == 0 {
			return nil, response.NewValidation("invalid user id: 0")
		}
		role, err := models.ParseProjectRole(string(in.Role))
		if err != nil {
			return nil, response.NewValidation(fmt.Sprintf("invalid role %q for user %d", in.Role, in.UserID))
		}
		list = append(list, models.Member{UserID: in.UserID, Role: role})
		ids = append(ids, in.UserID)
	}

	missing, ok, err := firstMissingUser(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, response.NewValidation(fmt.Sprintf("invalid user id: %d", missing))
	}

	return models.Members{}.Upsert(list...), nil
}

// compareAndSwap writes updates only if nobody changed the project since it
// was loaded, and bumps the version.
func (s *ProjectService) compareAndSwap(ctx context.Context, project *models.Project, updates map[string]interface{}) error {
	updates["version"] = project.Version + 1
	result := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND version = ?", project.ID, project.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update project %d: %w", project.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return staleProject()
	}
	return nil
}

// checkMemberChanges enforces the rules for turning list old into list next:
// admin roles are granted and revoked by admins only, and at least one admin remains.
func checkMemberChanges(old, next models.Members, actorID uint) error {
	for _, m := range next {
		prev, existed := authz.FindRole(old, m.UserID)
		if existed && prev == m.Role {
			continue
		}
		if existed && !authz.CanChangeMember(old, actorID, m.UserID) {
			return response.NewForbidden("only admins can change the role of an admin")
		}
		if !authz.CanGrantRole(old, actorID, m.Role) {
			return response.NewForbidden("only admins can grant the admin role")
		}
	}
	for _, m := range old {
		if !authz.IsMember(next, m.UserID) && !authz.CanChangeMember(old, actorID, m.UserID) {
			return response.NewForbidden("only admins can remove an admin")
		}
	}
	if !authz.HasAdmin(next) {
		return response.NewValidation("project must keep at least one admin")
	}
	return nil
}

func loadProject(ctx context.Context, db *gorm.DB, id uint) (*models.Project, error) {
	var project models.Project
	if err := db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, fmt.Errorf("load project %d: %w", id, err)
	}
	return &project, nil
}

// lockProject re-reads a project inside tx. Postgres and MySQL hold a shared
// row lock on it until commit so member changes and deletes wait; the SQLite
// dialect drops the clause and relies on its single writer.
func lockProject(ctx context.Context, tx *gorm.DB, id uint) (*models.Project, error) {
	var project models.Project
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}).First(&project, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, fmt.Errorf("load project %d: %w", id, err)
	}
	return &project, nil
}

func staleProject() error {
	return response.NewConflict("project was modified by another request, reload and retry")
}

func parseDateRange(startRaw, endRaw, subject string) (*time.Time, *time.Time, error) {
	start, err := models.ParseDate(startRaw)
	if err != nil {
		return nil, nil, response.NewValidation(err.Error())
	}
	end, err := models.ParseDate(endRaw)
	if err != nil {
		return nil, nil, response.NewValidation(err.Error())
	}
	if err := checkDateOrder(start, end, subject); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func parseRequiredDate(raw, field string) (*time.Time, error) {
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, response.NewValidation(err.Error())
	}
	if d == nil {
		return nil, response.NewValidation(field + " cannot be empty")
	}
	return d, nil
}

func checkDateOrder(start, end *time.Time, subject string) error {
	if start != nil && end != nil && end.Before(*start) {
		return response.NewValidation(fmt.Sprintf("%s end date must not be before its start date", subject))
	}
	return nil
}

func changedFields(updates map[string]interface{}) []string {
	fields := make([]string, 0, len(updates))
	for k := range updates {
		if k != "version" {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
