package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/pkg/metrics"
)

// FeaturePrefix marks an affordance key naming a feature-gated region.
const FeaturePrefix = "feature:"

// AffordanceState is how a UI element should render. Enabled implies Visible.
type AffordanceState struct {
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Label   string `json:"label,omitempty"`
	Icon    string `json:"icon,omitempty"`
}

// Affordance is one entry of a batch evaluation.
type Affordance struct {
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	Path      string `json:"path,omitempty"`
	SortOrder int    `json:"sort_order"`
	AffordanceState
}

var kindRank = map[string]int{KindNavigationItem: 0, KindButton: 1, KindFeature: 2}

type catalogEntry struct {
	id              uuid.UUID
	kind            string
	key             string
	label           string
	icon            string
	path            string
	objectType      string
	action          string
	requiredFeature *string
	sortOrder       int
}

func buttonEntry(b *models.Button) catalogEntry {
	return catalogEntry{
		id: b.ID, kind: KindButton, key: b.Key, label: b.Label, icon: b.Icon,
		objectType: b.ObjectType, action: b.Action, requiredFeature: b.RequiredFeature,
		sortOrder: b.SortOrder,
	}
}

func navigationEntry(n *models.NavigationItem) catalogEntry {
	return catalogEntry{
		id: n.ID, kind: KindNavigationItem, key: n.Key, label: n.Label, icon: n.Icon,
		path: n.Path, objectType: n.ObjectType, action: n.Action,
		requiredFeature: n.RequiredFeature, sortOrder: n.SortOrder,
	}
}

// affordanceInputs are the per-subject layers every affordance is composed from.
type affordanceInputs struct {
	admin       AdminStatus
	features    FeatureSet
	permissions PermissionMatrix
	overrides   OverrideSet
}

func (e *Engine) loadAffordanceInputs(ctx context.Context, subject *Subject) (*affordanceInputs, error) {
	in := &affordanceInputs{
		admin:       e.classifier.Classify(ctx, subject.UserID),
		features:    FeatureSet{},
		permissions: PermissionMatrix{},
	}
	if in.admin.IsSuperAdmin {
		return in, nil
	}

	state, err := e.SubscriptionState(ctx, subject)
	if err != nil {
		return nil, err
	}
	// Features only count while the subscription grants access.
	if state.HasActiveAccess {
		in.features = FeatureSetFromPlan(state.EffectivePlan)
	}

	if subject.ProfileID != nil {
		if in.permissions, err = e.permissions.PermissionsFor(ctx, *subject.ProfileID); err != nil {
			return nil, err
		}
		if in.overrides, err = e.overrides.OverridesFor(ctx, *subject.ProfileID); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (in *affordanceInputs) platformAdmin() bool {
	return in.admin.IsSuperAdmin
}

// evaluate composes platform bypass, plan feature, profile override and the
// permission floor. Any layer saying no wins.
func (in *affordanceInputs) evaluate(entry catalogEntry) AffordanceState {
	state := AffordanceState{Label: entry.label, Icon: entry.icon}

	if in.platformAdmin() {
		state.Visible, state.Enabled = true, true
		return state
	}

	if entry.requiredFeature != nil && *entry.requiredFeature != "" &&
		!in.features.Enabled(FeatureKey(*entry.requiredFeature)) {
		return state
	}

	var o Override
	if entry.kind == KindButton {
		o = in.overrides.Button(entry.id)
	} else {
		o = in.overrides.NavigationItem(entry.id)
	}
	state.Visible, state.Enabled = o.IsVisible, o.IsEnabled
	if o.CustomLabel != nil && *o.CustomLabel != "" {
		state.Label = *o.CustomLabel
	}
	if o.CustomIcon != nil && *o.CustomIcon != "" {
		state.Icon = *o.CustomIcon
	}

	if entry.objectType != "" &&
		!in.permissions.Can(ObjectType(entry.objectType), catalogAction(entry.action)) {
		state.Visible, state.Enabled = false, false
	}

	state.Enabled = state.Enabled && state.Visible
	return state
}

func (in *affordanceInputs) evaluateFeature(key FeatureKey) AffordanceState {
	on := in.platformAdmin() || in.features.Enabled(key)
	return AffordanceState{Visible: on, Enabled: on, Label: string(key)}
}

// AffordanceState resolves a single button, navigation item or feature region
// ("feature:<key>"). Unknown keys and lookup failures render hidden.
func (e *Engine) AffordanceState(ctx context.Context, subject *Subject, key string) AffordanceState {
	if !subject.Authenticated() {
		return AffordanceState{}
	}

	state, err := e.affordanceState(ctx, subject, key)
	if err != nil {
		metrics.RecordLookupFailure("affordance")
		e.logger.Warn("affordance lookup failed, hiding", "key", key, "error", err)
		return AffordanceState{}
	}
	return state
}

func (e *Engine) affordanceState(ctx context.Context, subject *Subject, key string) (AffordanceState, error) {
	if strings.HasPrefix(key, FeaturePrefix) {
		in, err := e.loadAffordanceInputs(ctx, subject)
		if err != nil {
			return AffordanceState{}, err
		}
		return in.evaluateFeature(FeatureKey(strings.TrimPrefix(key, FeaturePrefix))), nil
	}

	entry, found, err := e.findCatalogEntry(ctx, key)
	if err != nil || !found {
		return AffordanceState{}, err
	}

	in, err := e.loadAffordanceInputs(ctx, subject)
	if err != nil {
		return AffordanceState{}, err
	}
	return in.evaluate(entry), nil
}

func (e *Engine) findCatalogEntry(ctx context.Context, key string) (catalogEntry, bool, error) {
	button, err := cachedLookup(ctx, "button:"+key, func() (*models.Button, error) {
		return e.store.FindButtonByKey(ctx, key)
	})
	if err != nil {
		return catalogEntry{}, false, lookupFailure("loading button", err)
	}
	if button != nil {
		return buttonEntry(button), true, nil
	}

	nav, err := cachedLookup(ctx, "navigation:"+key, func() (*models.NavigationItem, error) {
		return e.store.FindNavigationItemByKey(ctx, key)
	})
	if err != nil {
		return catalogEntry{}, false, lookupFailure("loading navigation item", err)
	}
	if nav != nil {
		return navigationEntry(nav), true, nil
	}
	return catalogEntry{}, false, nil
}

// Affordances evaluates the whole catalog plus every known feature region in
// one pass. If the subject's layers cannot be loaded every entry is hidden;
// an error is returned only when the catalog itself cannot be listed.
func (e *Engine) Affordances(ctx context.Context, subject *Subject) ([]Affordance, error) {
	if !subject.Authenticated() {
		return nil, ErrUnauthenticated
	}

	buttons, err := e.store.ListButtons(ctx, nil)
	if err != nil {
		return nil, lookupFailure("listing buttons", err)
	}
	navs, err := e.store.ListNavigationItems(ctx, nil)
	if err != nil {
		return nil, lookupFailure("listing navigation items", err)
	}

	in, err := e.loadAffordanceInputs(ctx, subject)
	if err != nil {
		if !errors.Is(err, ErrLookupFailure) {
			return nil, fmt.Errorf("loading affordance inputs: %w", err)
		}
		metrics.RecordLookupFailure("affordance")
		e.logger.Warn("affordance lookup failed, hiding all", "user_id", subject.UserID, "error", err)
		in = nil
	}

	out := make([]Affordance, 0, len(buttons)+len(navs)+len(featureRegistry))
	add := func(entry catalogEntry, sortOverride *int) {
		a := Affordance{Key: entry.key, Kind: entry.kind, Path: entry.path, SortOrder: entry.sortOrder}
		if sortOverride != nil {
			a.SortOrder = *sortOverride
		}
		if in != nil {
			a.AffordanceState = in.evaluate(entry)
		} else {
			a.AffordanceState = AffordanceState{Label: entry.label, Icon: entry.icon}
		}
		out = append(out, a)
	}

	for i := range navs {
		var sortOverride *int
		if in != nil {
			sortOverride = in.overrides.NavigationItem(navs[i].ID).SortOrder
		}
		add(navigationEntry(&navs[i]), sortOverride)
	}
	for i := range buttons {
		var sortOverride *int
		if in != nil {
			sortOverride = in.overrides.Button(buttons[i].ID).SortOrder
		}
		add(buttonEntry(&buttons[i]), sortOverride)
	}
	for _, key := range KnownFeatures() {
		a := Affordance{Key: FeaturePrefix + string(key), Kind: KindFeature}
		if in != nil {
			a.AffordanceState = in.evaluateFeature(key)
		} else {
			a.Label = string(key)
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindRank[out[i].Kind] < kindRank[out[j].Kind]
		}
		return out[i].SortOrder < out[j].SortOrder
	})

	return out, nil
}
