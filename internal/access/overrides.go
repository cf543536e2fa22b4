package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
)

// Override is a profile's customization of one navigation item or button.
type Override struct {
	TargetID    uuid.UUID `json:"target_id"`
	IsEnabled   bool      `json:"is_enabled"`
	IsVisible   bool      `json:"is_visible"`
	CustomLabel *string   `json:"custom_label,omitempty"`
	CustomIcon  *string   `json:"custom_icon,omitempty"`
	SortOrder   *int      `json:"sort_order,omitempty"`
}

// OverrideSet holds a profile's overrides keyed by catalog entry id. Lookups of
// entries without a row return the zero Override: hidden and disabled.
type OverrideSet struct {
	NavigationItems map[uuid.UUID]Override
	Buttons         map[uuid.UUID]Override
}

func (s OverrideSet) Button(id uuid.UUID) Override {
	if o, ok := s.Buttons[id]; ok {
		return o
	}
	return Override{TargetID: id}
}

func (s OverrideSet) NavigationItem(id uuid.UUID) Override {
	if o, ok := s.NavigationItems[id]; ok {
		return o
	}
	return Override{TargetID: id}
}

type OverrideResolver struct {
	store OverrideStore
}

func NewOverrideResolver(store OverrideStore) *OverrideResolver {
	return &OverrideResolver{store: store}
}

func (r *OverrideResolver) OverridesFor(ctx context.Context, profileID uuid.UUID) (OverrideSet, error) {
	set := OverrideSet{
		NavigationItems: make(map[uuid.UUID]Override),
		Buttons:         make(map[uuid.UUID]Override),
	}

	buttons, err := cachedLookup(ctx, "profile_buttons:"+profileID.String(), func() ([]models.ProfileButton, error) {
		return r.store.ListProfileButtons(ctx, profileID)
	})
	if err != nil {
		return set, lookupFailure("loading button overrides", err)
	}
	for _, b := range buttons {
		set.Buttons[b.ButtonID] = Override{
			TargetID:    b.ButtonID,
			IsEnabled:   b.IsEnabled,
			IsVisible:   b.IsVisible,
			CustomLabel: b.CustomLabel,
			CustomIcon:  b.CustomIcon,
			SortOrder:   b.SortOrder,
		}
	}

	navs, err := cachedLookup(ctx, "profile_navigation:"+profileID.String(), func() ([]models.ProfileNavigationItem, error) {
		return r.store.ListProfileNavigationItems(ctx, profileID)
	})
	if err != nil {
		return set, lookupFailure("loading navigation overrides", err)
	}
	for _, n := range navs {
		set.NavigationItems[n.NavigationItemID] = Override{
			TargetID:    n.NavigationItemID,
			IsEnabled:   n.IsEnabled,
			IsVisible:   n.IsVisible,
			CustomLabel: n.CustomLabel,
			CustomIcon:  n.CustomIcon,
			SortOrder:   n.SortOrder,
		}
	}

	return set, nil
}
