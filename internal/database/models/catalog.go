package models

// Button is a catalog entry for an actionable UI element.
type Button struct {
	Base
	Key             string  `gorm:"uniqueIndex;not null" json:"key"`
	Label           string  `gorm:"not null" json:"label"`
	Icon            string  `json:"icon"`
	ObjectType      string  `gorm:"type:varchar(50);index" json:"object_type"`
	Action          string  `gorm:"type:varchar(20)" json:"action"`
	RequiredFeature *string `json:"required_feature,omitempty"`
	IsSystem        bool    `gorm:"default:false" json:"is_system"`
	SortOrder       int     `gorm:"default:0" json:"sort_order"`
}

func (Button) TableName() string {
	return "buttons"
}

// NavigationItem is a catalog entry for a navigation link.
type NavigationItem struct {
	Base
	Key             string  `gorm:"uniqueIndex;not null" json:"key"`
	Label           string  `gorm:"not null" json:"label"`
	Icon            string  `json:"icon"`
	Path            string  `json:"path"`
	ObjectType      string  `gorm:"type:varchar(50);index" json:"object_type"`
	Action          string  `gorm:"type:varchar(20)" json:"action"`
	RequiredFeature *string `json:"required_feature,omitempty"`
	IsSystem        bool    `gorm:"default:false" json:"is_system"`
	SortOrder       int     `gorm:"default:0" json:"sort_order"`
}

func (NavigationItem) TableName() string {
	return "navigation_items"
}
