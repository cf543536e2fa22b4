package access

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
)

type FeatureKey string

const (
	FeatureExtranet     FeatureKey = "extranet"
	FeatureAccounting   FeatureKey = "accounting"
	FeatureMessaging    FeatureKey = "messaging"
	FeatureDocuments    FeatureKey = "documents"
	FeatureTasks        FeatureKey = "tasks"
	FeatureReports      FeatureKey = "reports"
	FeatureMultiOwner   FeatureKey = "multi_owner"
	FeatureCustomDomain FeatureKey = "custom_domain"
	FeatureBankSync     FeatureKey = "bank_sync"
	FeatureESignature   FeatureKey = "e_signature"
	FeatureAPIAccess    FeatureKey = "api_access"
)

var featureRegistry = map[FeatureKey]struct{}{
	FeatureExtranet:     {},
	FeatureAccounting:   {},
	FeatureMessaging:    {},
	FeatureDocuments:    {},
	FeatureTasks:        {},
	FeatureReports:      {},
	FeatureMultiOwner:   {},
	FeatureCustomDomain: {},
	FeatureBankSync:     {},
	FeatureESignature:   {},
	FeatureAPIAccess:    {},
}

func IsKnownFeature(key string) bool {
	_, ok := featureRegistry[FeatureKey(key)]
	return ok
}

// KnownFeatures returns the registry in stable order.
func KnownFeatures() []FeatureKey {
	keys := make([]FeatureKey, 0, len(featureRegistry))
	for k := range featureRegistry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ValidatePlanFeatures rejects unknown feature keys and limits below Unlimited.
// Plans are checked at write time so a typo never silently reads as disabled.
func ValidatePlanFeatures(features models.PlanFeatures) error {
	fields := make(map[string]string)
	for key, f := range features {
		if !IsKnownFeature(key) {
			fields["features."+key] = "unknown feature key"
			continue
		}
		for name, limit := range f.Limits {
			if limit < Unlimited {
				fields["features."+key+".limits."+name] = "must be -1 (unlimited) or greater"
			}
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

type Feature struct {
	Enabled bool           `json:"enabled"`
	Limits  map[string]int `json:"limits,omitempty"`
}

// FeatureSet is the resolved feature map of a plan.
type FeatureSet map[FeatureKey]Feature

// FeatureSetFromPlan converts the stored feature map. A nil plan has no features.
func FeatureSetFromPlan(plan *models.Plan) FeatureSet {
	set := make(FeatureSet)
	if plan == nil {
		return set
	}
	for key, f := range plan.Features.Data() {
		set[FeatureKey(key)] = Feature{Enabled: f.Enabled, Limits: f.Limits}
	}
	return set
}

// Enabled is false for keys absent from the set.
func (s FeatureSet) Enabled(key FeatureKey) bool {
	return s[key].Enabled
}

// Limit returns the cap for name under key. ok is false when the feature is
// enabled and declares no such limit, meaning no numeric cap. A disabled
// feature is capped at zero.
func (s FeatureSet) Limit(key FeatureKey, name string) (limit int, ok bool) {
	f, present := s[key]
	if !present || !f.Enabled {
		return 0, true
	}
	v, found := f.Limits[name]
	if !found || v == Unlimited {
		return 0, false
	}
	return v, true
}

type FeatureResolver struct {
	store SubscriptionStore
}

func NewFeatureResolver(store SubscriptionStore) *FeatureResolver {
	return &FeatureResolver{store: store}
}

// FeaturesFor resolves the feature set of planID. A missing plan has no features.
func (r *FeatureResolver) FeaturesFor(ctx context.Context, planID uuid.UUID) (FeatureSet, error) {
	plan, err := loadPlan(ctx, r.store, planID)
	if err != nil {
		return FeatureSet{}, err
	}
	return FeatureSetFromPlan(plan), nil
}
