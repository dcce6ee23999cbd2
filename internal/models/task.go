package models

import "time"

type Task struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ProjectID     uint       `gorm:"index;not null" json:"project_id"`
	Project       *Project   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedBy     uint       `gorm:"index;not null" json:"created_by"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	Complete      bool       `gorm:"not null" json:"complete"`
	StartTaskDate *time.Time `json:"start_task_date"`
	EndTaskDate   *time.Time `json:"end_task_date"`
	Version       int        `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	AssignedUsers []uint `gorm:"-" json:"assigned_users"`
}

func (Task) TableName() string { return "tasks" }

// TaskUser is one assignment of a user to a task. ID grows with every
// insert and gives the assignment order.
type TaskUser struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	TaskID    uint      `gorm:"uniqueIndex:idx_task_user;not null" json:"task_id"`
	Task      *Task     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    uint      `gorm:"uniqueIndex:idx_task_user;index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (TaskUser) TableName() string { return "task_users" }
