package models

import "time"

// ActivityLog records one successful mutation of a project or its tasks
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"index;not null" json:"project_id"`
	TaskID    *uint     `gorm:"index" json:"task_id,omitempty"`
	ActorID   uint      `gorm:"index;not null" json:"actor_id"`
	Action    string    `gorm:"size:64;index;not null" json:"action"` // project.created, task.user_assigned, ...
	Detail    string    `gorm:"type:text" json:"detail"`              // JSON extra data
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }
