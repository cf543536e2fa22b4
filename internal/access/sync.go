package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	KindButton         = "button"
	KindNavigationItem = "navigation_item"
	KindFeature        = "feature"
)

type SyncFailure struct {
	Kind     string    `json:"kind"`
	TargetID uuid.UUID `json:"target_id"`
	Error    string    `json:"error"`
}

// SyncReport summarizes one profile synchronization. Failed upserts leave
// their row stale until the next run.
type SyncReport struct {
	ProfileID       uuid.UUID     `json:"profile_id"`
	Buttons         int           `json:"buttons"`
	NavigationItems int           `json:"navigation_items"`
	Failures        []SyncFailure `json:"failures,omitempty"`
}

// Synchronizer rewrites a profile's UI overrides from its permission matrix.
// Manual customizations of is_enabled/is_visible are overwritten.
type Synchronizer struct {
	store       SyncStore
	concurrency int
	logger      *slog.Logger
}

func NewSynchronizer(store SyncStore, concurrency int, logger *slog.Logger) *Synchronizer {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Synchronizer{store: store, concurrency: concurrency, logger: logger}
}

// Synchronize upserts is_enabled = is_visible = shouldEnable for every button
// and navigation item whose object type has a permission row for the profile.
// Upserts run in parallel; individual failures are reported, not returned.
func (s *Synchronizer) Synchronize(ctx context.Context, profileID uuid.UUID) (*SyncReport, error) {
	report := &SyncReport{ProfileID: profileID}

	rows, err := s.store.ListPermissions(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("loading permissions: %w", err)
	}
	matrix := matrixFromRows(rows)
	types := matrix.ObjectTypes()
	if len(types) == 0 {
		return report, nil
	}

	buttons, err := s.store.ListButtons(ctx, types)
	if err != nil {
		return nil, fmt.Errorf("listing buttons: %w", err)
	}
	navs, err := s.store.ListNavigationItems(ctx, types)
	if err != nil {
		return nil, fmt.Errorf("listing navigation items: %w", err)
	}

	var mu sync.Mutex
	record := func(kind string, id uuid.UUID, err error) {
		metrics.RecordSyncUpsert(kind, err)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failures = append(report.Failures, SyncFailure{Kind: kind, TargetID: id, Error: err.Error()})
			return
		}
		if kind == KindButton {
			report.Buttons++
		} else {
			report.NavigationItems++
		}
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, b := range buttons {
		b := b
		enable := matrix.Can(ObjectType(b.ObjectType), catalogAction(b.Action))
		g.Go(func() error {
			err := s.store.UpsertProfileButton(ctx, &models.ProfileButton{
				ProfileID: profileID,
				ButtonID:  b.ID,
				IsEnabled: enable,
				IsVisible: enable,
			})
			record(KindButton, b.ID, err)
			return nil
		})
	}
	for _, n := range navs {
		n := n
		enable := matrix.Can(ObjectType(n.ObjectType), catalogAction(n.Action))
		g.Go(func() error {
			err := s.store.UpsertProfileNavigationItem(ctx, &models.ProfileNavigationItem{
				ProfileID:        profileID,
				NavigationItemID: n.ID,
				IsEnabled:        enable,
				IsVisible:        enable,
			})
			record(KindNavigationItem, n.ID, err)
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Failures) > 0 {
		s.logger.Warn("profile sync completed with failures",
			"profile_id", profileID, "failures", len(report.Failures))
	} else {
		s.logger.Info("profile sync completed",
			"profile_id", profileID, "buttons", report.Buttons, "navigation_items", report.NavigationItems)
	}

	return report, nil
}

// SynchronizeAll runs Synchronize for every profile. A profile whose
// permissions cannot be read is skipped and logged.
func (s *Synchronizer) SynchronizeAll(ctx context.Context) ([]*SyncReport, error) {
	ids, err := s.store.ListProfileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	reports := make([]*SyncReport, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.Synchronize(ctx, id)
		if err != nil {
			s.logger.Error("profile sync failed", "profile_id", id, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// catalogAction reads a catalog entry's action. Entries that declare none are
// treated as read.
func catalogAction(action string) Action {
	if action == "" {
		return ActionRead
	}
	return Action(action)
}
