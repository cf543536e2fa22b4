package dto

import (
	"time"

	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/validation"
	"github.com/hugh/rentwise/internal/database/models"
)

type MeResponse struct {
	User          UserDTO              `json:"user"`
	IsSuperAdmin  bool                 `json:"is_super_admin"`
	IsGlobalAdmin bool                 `json:"is_global_admin"`
	Subscription  SubscriptionResponse `json:"subscription"`
}

type CanResponse struct {
	ObjectType string `json:"object_type"`
	Action     string `json:"action"`
	Allowed    bool   `json:"allowed"`
}

type AffordanceResponse struct {
	Key string `json:"key"`
	access.AffordanceState
}

type UsageDTO struct {
	ExtranetTenants int  `json:"extranet_tenants"`
	WithinLimit     bool `json:"within_limit"`
}

type SubscriptionResponse struct {
	IsConfigured        bool                      `json:"is_configured"`
	Status              models.SubscriptionStatus `json:"status,omitempty"`
	HasSubscription     bool                      `json:"has_subscription"`
	HasActiveAccess     bool                      `json:"has_active_access"`
	CancelAtPeriodEnd   bool                      `json:"cancel_at_period_end"`
	EffectiveExpiration *time.Time                `json:"effective_expiration,omitempty"`
	Plan                *PlanResponse             `json:"plan,omitempty"`
	Features            []string                  `json:"features"`
	Limits              access.PlanLimits         `json:"limits"`
	Usage               UsageDTO                  `json:"usage"`
}

// NewSubscriptionResponse flattens a resolved state. Features are listed only
// while the organization has active access.
func NewSubscriptionResponse(state access.SubscriptionState) SubscriptionResponse {
	resp := SubscriptionResponse{
		IsConfigured:    state.IsConfigured,
		Status:          state.Status,
		HasSubscription: state.HasSubscription,
		HasActiveAccess: state.HasActiveAccess,
		Features:        []string{},
		Limits:          access.LimitsFor(state.EffectivePlan),
	}

	if sub := state.Subscription; sub != nil {
		resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		exp := access.EffectiveExpiration(sub)
		resp.EffectiveExpiration = &exp
	}
	if state.EffectivePlan != nil {
		plan := NewPlanResponse(state.EffectivePlan)
		resp.Plan = &plan
	}
	if state.HasActiveAccess {
		features := access.FeatureSetFromPlan(state.EffectivePlan)
		for _, key := range access.KnownFeatures() {
			if features.Enabled(key) {
				resp.Features = append(resp.Features, string(key))
			}
		}
	}
	if org := state.Organization; org != nil {
		resp.Usage.ExtranetTenants = org.ExtranetTenantCount
	}
	resp.Usage.WithinLimit = access.WithinLimit(resp.Limits.MaxExtranetTenants, resp.Usage.ExtranetTenants)

	return resp
}

type OrganizationSetupRequest struct {
	Name         string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Country      string  `json:"country,omitempty" validate:"omitempty,len=2"`
	CustomDomain *string `json:"custom_domain,omitempty" validate:"omitempty,domain"`
}

func (r OrganizationSetupRequest) Validate() map[string]string {
	return validation.Struct(r)
}

type OrganizationResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	Country      string  `json:"country"`
	CustomDomain *string `json:"custom_domain,omitempty"`
	IsConfigured bool    `json:"is_configured"`
}

func NewOrganizationResponse(o *models.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:           o.ID.String(),
		Name:         o.Name,
		Slug:         o.Slug,
		Country:      o.Country,
		CustomDomain: o.CustomDomain,
		IsConfigured: o.Configured(),
	}
}
