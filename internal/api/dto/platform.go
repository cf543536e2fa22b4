package dto

import (
	"errors"

	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/validation"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/shopspring/decimal"
)

type PlanRequest struct {
	Name               string              `json:"name" validate:"required,slug"`
	DisplayName        string              `json:"display_name" validate:"required,max=100"`
	MonthlyPrice       decimal.Decimal     `json:"monthly_price"`
	IsActive           *bool               `json:"is_active,omitempty"`
	MaxLots            *int                `json:"max_lots,omitempty" validate:"omitempty,gte=-1"`
	MaxUsers           *int                `json:"max_users,omitempty" validate:"omitempty,gte=-1"`
	MaxExtranetTenants *int                `json:"max_extranet_tenants,omitempty" validate:"omitempty,gte=-1"`
	Features           models.PlanFeatures `json:"features"`
}

// Validate checks the request shape and rejects feature keys the registry
// does not know.
func (r PlanRequest) Validate() map[string]string {
	errs := validation.Struct(r)
	if r.MonthlyPrice.IsNegative() {
		errs["monthly_price"] = "must not be negative"
	}

	var verr *access.ValidationError
	if err := access.ValidatePlanFeatures(r.Features); errors.As(err, &verr) {
		for field, msg := range verr.Fields {
			errs[field] = msg
		}
	}
	return errs
}

type PlanResponse struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	DisplayName        string              `json:"display_name"`
	MonthlyPrice       decimal.Decimal     `json:"monthly_price"`
	IsActive           bool                `json:"is_active"`
	MaxLots            *int                `json:"max_lots"`
	MaxUsers           *int                `json:"max_users"`
	MaxExtranetTenants *int                `json:"max_extranet_tenants"`
	Features           models.PlanFeatures `json:"features"`
}

func NewPlanResponse(p *models.Plan) PlanResponse {
	features := p.Features.Data()
	if features == nil {
		features = models.PlanFeatures{}
	}
	return PlanResponse{
		ID:                 p.ID.String(),
		Name:               p.Name,
		DisplayName:        p.DisplayName,
		MonthlyPrice:       p.MonthlyPrice,
		IsActive:           p.IsActive,
		MaxLots:            p.MaxLots,
		MaxUsers:           p.MaxUsers,
		MaxExtranetTenants: p.MaxExtranetTenants,
		Features:           features,
	}
}

// CatalogRequest creates or updates a button or, when Path is set, a
// navigation item.
type CatalogRequest struct {
	Key             string  `json:"key" validate:"required,catalogkey"`
	Label           string  `json:"label" validate:"required,max=100"`
	Icon            string  `json:"icon,omitempty" validate:"max=50"`
	Path            string  `json:"path,omitempty" validate:"omitempty,pagepath"`
	ObjectType      string  `json:"object_type,omitempty" validate:"omitempty,objecttype"`
	Action          string  `json:"action,omitempty" validate:"omitempty,action"`
	RequiredFeature *string `json:"required_feature,omitempty" validate:"omitempty,featurekey"`
	SortOrder       int     `json:"sort_order"`
}

func (r CatalogRequest) Validate() map[string]string {
	return validation.Struct(r)
}

// ValidateNavigation additionally requires a path.
func (r CatalogRequest) ValidateNavigation() map[string]string {
	errs := r.Validate()
	if r.Path == "" {
		errs["path"] = "is required"
	}
	return errs
}

type SubscriptionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active trialing past_due unpaid canceled expired"`
}

func (r SubscriptionStatusRequest) Validate() map[string]string {
	return validation.Struct(r)
}
