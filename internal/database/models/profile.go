package models

import "github.com/google/uuid"

type Profile struct {
	Base
	Name            string     `gorm:"not null" json:"name"`
	Description     string     `json:"description"`
	OrganizationID  *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	IsSystemProfile bool       `gorm:"default:false" json:"is_system_profile"`
	IsGlobal        bool       `gorm:"default:false" json:"is_global"`

	Permissions []ProfileObjectPermission `gorm:"foreignKey:ProfileID" json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}

type ProfileObjectPermission struct {
	Row
	ProfileID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_profile_object" json:"profile_id"`
	ObjectType string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_profile_object" json:"object_type"`
	CanCreate  bool      `gorm:"not null" json:"can_create"`
	CanRead    bool      `gorm:"not null" json:"can_read"`
	CanEdit    bool      `gorm:"not null" json:"can_edit"`
	CanDelete  bool      `gorm:"not null" json:"can_delete"`
}

func (ProfileObjectPermission) TableName() string {
	return "profile_object_permissions"
}

type ProfileButton struct {
	Row
	ProfileID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_profile_button" json:"profile_id"`
	ButtonID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_profile_button" json:"button_id"`
	IsEnabled   bool      `gorm:"not null" json:"is_enabled"`
	IsVisible   bool      `gorm:"not null" json:"is_visible"`
	CustomLabel *string   `json:"custom_label,omitempty"`
	CustomIcon  *string   `json:"custom_icon,omitempty"`
	SortOrder   *int      `json:"sort_order,omitempty"`
}

func (ProfileButton) TableName() string {
	return "profile_buttons"
}

type ProfileNavigationItem struct {
	Row
	ProfileID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_profile_nav" json:"profile_id"`
	NavigationItemID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_profile_nav" json:"navigation_item_id"`
	IsEnabled        bool      `gorm:"not null" json:"is_enabled"`
	IsVisible        bool      `gorm:"not null" json:"is_visible"`
	CustomLabel      *string   `json:"custom_label,omitempty"`
	CustomIcon       *string   `json:"custom_icon,omitempty"`
	SortOrder        *int      `json:"sort_order,omitempty"`
}

func (ProfileNavigationItem) TableName() string {
	return "profile_navigation_items"
}
