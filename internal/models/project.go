package models

import "time"

// Project owns its member list; the list is the only access control source
// for the project and its tasks.
type Project struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	Description      string     `gorm:"type:text" json:"description"`
	Members          Members    `gorm:"type:text;not null" json:"members"`
	StartProjectDate *time.Time `json:"start_project_date"`
	EndProjectDate   *time.Time `json:"end_project_date"`
	CreatedBy        uint       `gorm:"index" json:"created_by"`
	Version          int        `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
