package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	AuthTypeLocal = "local"
	AuthTypeLDAP  = "ldap"
)

// User is a registered account. Projects reference users by ID only.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	Email           string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password        string         `gorm:"size:255" json:"-"` // empty for LDAP users
	AuthType        string         `gorm:"size:20;default:local" json:"auth_type"`
	EmailVerifiedAt *time.Time     `json:"email_verified_at"`
	LastLogin       *time.Time     `json:"last_login"`
	TokenVersion    int            `gorm:"not null;default:0" json:"-"` // bumped on logout to revoke issued tokens
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
