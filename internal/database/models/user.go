package models

import "github.com/google/uuid"

type User struct {
	Base
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	Name           string     `json:"name"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	ProfileID      *uuid.UUID `gorm:"type:uuid;index" json:"profile_id,omitempty"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Profile      *Profile      `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// PlatformAdmin grants platform-level authority to a user. Super-admins bypass
// organization checks; global admins may manage global profiles.
type PlatformAdmin struct {
	Base
	UserID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	IsSuperAdmin  bool      `gorm:"default:false" json:"is_super_admin"`
	IsGlobalAdmin bool      `gorm:"default:false" json:"is_global_admin"`
}

func (PlatformAdmin) TableName() string {
	return "platform_admins"
}
