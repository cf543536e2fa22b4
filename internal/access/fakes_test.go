package access_test

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/database/models"
)

var errStoreDown = errors.New("connection refused")

// flakyStore wraps a real store and fails the lookups named in fail.
type flakyStore struct {
	*access.GormStore
	fail  map[string]bool
	calls map[string]*int64
}

func newFlakyStore(inner *access.GormStore, fail ...string) *flakyStore {
	s := &flakyStore{GormStore: inner, fail: map[string]bool{}, calls: map[string]*int64{}}
	for _, f := range fail {
		s.fail[f] = true
	}
	for _, name := range []string{"user", "admin", "org", "subscription", "plan", "permissions", "overrides", "catalog", "upsert_button"} {
		var n int64
		s.calls[name] = &n
	}
	return s
}

func (s *flakyStore) hit(name string) error {
	atomic.AddInt64(s.calls[name], 1)
	if s.fail[name] {
		return errStoreDown
	}
	return nil
}

func (s *flakyStore) count(name string) int64 {
	return atomic.LoadInt64(s.calls[name])
}

func (s *flakyStore) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := s.hit("user"); err != nil {
		return nil, err
	}
	return s.GormStore.FindUser(ctx, id)
}

func (s *flakyStore) FindPlatformAdmin(ctx context.Context, userID uuid.UUID) (*models.PlatformAdmin, error) {
	if err := s.hit("admin"); err != nil {
		return nil, err
	}
	return s.GormStore.FindPlatformAdmin(ctx, userID)
}

func (s *flakyStore) FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	if err := s.hit("org"); err != nil {
		return nil, err
	}
	return s.GormStore.FindOrganization(ctx, id)
}

func (s *flakyStore) LatestSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	if err := s.hit("subscription"); err != nil {
		return nil, err
	}
	return s.GormStore.LatestSubscription(ctx, orgID)
}

func (s *flakyStore) FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if err := s.hit("plan"); err != nil {
		return nil, err
	}
	return s.GormStore.FindPlan(ctx, id)
}

func (s *flakyStore) ListPermissions(ctx context.Context, profileID uuid.UUID) ([]models.ProfileObjectPermission, error) {
	if err := s.hit("permissions"); err != nil {
		return nil, err
	}
	return s.GormStore.ListPermissions(ctx, profileID)
}

func (s *flakyStore) ListProfileButtons(ctx context.Context, profileID uuid.UUID) ([]models.ProfileButton, error) {
	if err := s.hit("overrides"); err != nil {
		return nil, err
	}
	return s.GormStore.ListProfileButtons(ctx, profileID)
}

func (s *flakyStore) FindButtonByKey(ctx context.Context, key string) (*models.Button, error) {
	if err := s.hit("catalog"); err != nil {
		return nil, err
	}
	return s.GormStore.FindButtonByKey(ctx, key)
}

func (s *flakyStore) UpsertProfileButton(ctx context.Context, row *models.ProfileButton) error {
	if err := s.hit("upsert_button"); err != nil {
		return err
	}
	return s.GormStore.UpsertProfileButton(ctx, row)
}
