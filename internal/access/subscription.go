package access

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
)

// GracePeriod is how long past its effective expiration a subscription keeps
// its status before the sweep transitions it.
const GracePeriod = 5 * 24 * time.Hour

// SubscriptionState is what the resolver reports for an organization.
type SubscriptionState struct {
	IsConfigured    bool                      `json:"is_configured"`
	Status          models.SubscriptionStatus `json:"status,omitempty"`
	HasSubscription bool                      `json:"has_subscription"`
	HasActiveAccess bool                      `json:"has_active_access"`
	EffectivePlan   *models.Plan              `json:"effective_plan,omitempty"`

	Organization *models.Organization `json:"-"`
	Subscription *models.Subscription `json:"-"`
}

type SubscriptionResolver struct {
	store SubscriptionStore
}

func NewSubscriptionResolver(store SubscriptionStore) *SubscriptionResolver {
	return &SubscriptionResolver{store: store}
}

// Resolve reports configuration and subscription status for orgID. A missing
// organization, subscription or plan resolves to the restrictive state; only
// store failures are returned as errors (wrapping ErrLookupFailure).
func (r *SubscriptionResolver) Resolve(ctx context.Context, orgID uuid.UUID) (SubscriptionState, error) {
	var state SubscriptionState

	org, err := cachedLookup(ctx, "org:"+orgID.String(), func() (*models.Organization, error) {
		return r.store.FindOrganization(ctx, orgID)
	})
	if err != nil {
		return state, lookupFailure("loading organization", err)
	}
	if org == nil {
		return state, nil
	}
	state.Organization = org
	state.IsConfigured = org.Configured()

	sub, err := cachedLookup(ctx, "subscription:"+orgID.String(), func() (*models.Subscription, error) {
		return r.store.LatestSubscription(ctx, orgID)
	})
	if err != nil {
		return state, lookupFailure("loading subscription", err)
	}
	if sub == nil {
		return state, nil
	}
	state.Subscription = sub
	state.HasSubscription = true
	state.Status = sub.Status
	state.HasActiveAccess = sub.Status.GrantsAccess()

	if sub.PlanID != nil {
		plan, err := loadPlan(ctx, r.store, *sub.PlanID)
		if err != nil {
			return state, err
		}
		state.EffectivePlan = plan
	}

	return state, nil
}

func loadPlan(ctx context.Context, store SubscriptionStore, planID uuid.UUID) (*models.Plan, error) {
	plan, err := cachedLookup(ctx, "plan:"+planID.String(), func() (*models.Plan, error) {
		return store.FindPlan(ctx, planID)
	})
	if err != nil {
		return nil, lookupFailure("loading plan", err)
	}
	return plan, nil
}

// EffectiveExpiration is the moment a subscription stops being paid for.
// With cancelAtPeriodEnd the period end wins over a later explicit end date;
// otherwise an explicit end date wins over the period end.
func EffectiveExpiration(sub *models.Subscription) time.Time {
	if sub.CancelAtPeriodEnd {
		if sub.EndDate != nil && sub.EndDate.Before(sub.CurrentPeriodEnd) {
			return *sub.EndDate
		}
		return sub.CurrentPeriodEnd
	}
	if sub.EndDate != nil {
		return *sub.EndDate
	}
	return sub.CurrentPeriodEnd
}

// ExpiryTarget reports the status a lapsed subscription moves to.
func ExpiryTarget(sub *models.Subscription) models.SubscriptionStatus {
	if sub.CancelAtPeriodEnd {
		return models.SubscriptionStatusCanceled
	}
	return models.SubscriptionStatusExpired
}

// IsLapsed reports whether sub is more than grace past its effective
// expiration at now.
func IsLapsed(sub *models.Subscription, now time.Time, grace time.Duration) bool {
	return now.Sub(EffectiveExpiration(sub)) > grace
}

var validTransitions = map[models.SubscriptionStatus][]models.SubscriptionStatus{
	models.SubscriptionStatusTrialing: {
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusExpired,
	},
	models.SubscriptionStatusActive: {
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusExpired,
	},
	models.SubscriptionStatusPastDue: {
		models.SubscriptionStatusActive,
		models.SubscriptionStatusUnpaid,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusExpired,
	},
	models.SubscriptionStatusUnpaid: {
		models.SubscriptionStatusActive,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusExpired,
	},
}

// CanTransition reports whether a subscription may move from one status to
// another. Canceled and expired are terminal.
func CanTransition(from, to models.SubscriptionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Unlimited marks a plan limit with no cap.
const Unlimited = -1

type PlanLimits struct {
	MaxLots            int `json:"max_lots"`
	MaxUsers           int `json:"max_users"`
	MaxExtranetTenants int `json:"max_extranet_tenants"`
}

// LimitsFor reads the numeric limits of plan. An absent or negative limit is
// Unlimited; a nil plan allows nothing.
func LimitsFor(plan *models.Plan) PlanLimits {
	if plan == nil {
		return PlanLimits{}
	}
	return PlanLimits{
		MaxLots:            limitValue(plan.MaxLots),
		MaxUsers:           limitValue(plan.MaxUsers),
		MaxExtranetTenants: limitValue(plan.MaxExtranetTenants),
	}
}

func limitValue(v *int) int {
	if v == nil || *v < 0 {
		return Unlimited
	}
	return *v
}

// WithinLimit reports whether used stays inside limit.
func WithinLimit(limit, used int) bool {
	return limit == Unlimited || used <= limit
}
