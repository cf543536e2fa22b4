package models

type Organization struct {
	Base
	Name         string  `gorm:"not null" json:"name"`
	Slug         string  `gorm:"uniqueIndex;not null" json:"slug"`
	Country      string  `json:"country"`
	CustomDomain *string `gorm:"uniqueIndex" json:"custom_domain,omitempty"`

	// IsConfigured is nullable on purpose: rows created before guided setup
	// existed carry NULL. Use Configured() rather than reading it directly.
	IsConfigured *bool `json:"is_configured"`

	ExtranetTenantCount int `gorm:"default:0" json:"extranet_tenant_count"`

	Users         []User         `gorm:"foreignKey:OrganizationID" json:"-"`
	Subscriptions []Subscription `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Configured reports whether setup has been completed. Only a stored true
// counts; false and NULL both mean not configured.
func (o *Organization) Configured() bool {
	return o != nil && o.IsConfigured != nil && *o.IsConfigured
}
