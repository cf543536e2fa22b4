package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PlanFeature is one entry of a plan's feature map.
type PlanFeature struct {
	Enabled bool           `json:"enabled"`
	Limits  map[string]int `json:"limits,omitempty"`
}

// PlanFeatures maps a feature key to its switch and limits.
type PlanFeatures map[string]PlanFeature

type Plan struct {
	Base
	Name         string          `gorm:"uniqueIndex;not null" json:"name"`
	DisplayName  string          `json:"display_name"`
	MonthlyPrice decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"monthly_price"`
	IsActive     bool            `gorm:"default:true" json:"is_active"`

	// Limits: nil or -1 means unlimited.
	MaxLots            *int `json:"max_lots"`
	MaxUsers           *int `json:"max_users"`
	MaxExtranetTenants *int `json:"max_extranet_tenants"`

	Features datatypes.JSONType[PlanFeatures] `json:"features"`
}

func (Plan) TableName() string {
	return "plans"
}
