package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Point lookups return (nil, nil) when the row does not exist. Not found is a
// restrictive default, not an error.

type UserStore interface {
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AdminRegistry interface {
	FindPlatformAdmin(ctx context.Context, userID uuid.UUID) (*models.PlatformAdmin, error)
}

type SubscriptionStore interface {
	FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	LatestSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
	FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type PermissionStore interface {
	ListPermissions(ctx context.Context, profileID uuid.UUID) ([]models.ProfileObjectPermission, error)
}

type OverrideStore interface {
	ListProfileButtons(ctx context.Context, profileID uuid.UUID) ([]models.ProfileButton, error)
	ListProfileNavigationItems(ctx context.Context, profileID uuid.UUID) ([]models.ProfileNavigationItem, error)
}

// CatalogStore lists catalog entries. A nil objectTypes slice means no filter;
// an empty one matches nothing.
type CatalogStore interface {
	ListButtons(ctx context.Context, objectTypes []string) ([]models.Button, error)
	ListNavigationItems(ctx context.Context, objectTypes []string) ([]models.NavigationItem, error)
	FindButtonByKey(ctx context.Context, key string) (*models.Button, error)
	FindNavigationItemByKey(ctx context.Context, key string) (*models.NavigationItem, error)
}

type SyncStore interface {
	PermissionStore
	CatalogStore
	ListProfileIDs(ctx context.Context) ([]uuid.UUID, error)
	UpsertProfileButton(ctx context.Context, row *models.ProfileButton) error
	UpsertProfileNavigationItem(ctx context.Context, row *models.ProfileNavigationItem) error
}

// Store is everything the engine reads.
type Store interface {
	UserStore
	AdminRegistry
	SubscriptionStore
	PermissionStore
	OverrideStore
	CatalogStore
}

var (
	_ Store     = (*GormStore)(nil)
	_ SyncStore = (*GormStore)(nil)
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func first[T any](ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return first[models.User](ctx, s.db, "id = ?", id)
}

func (s *GormStore) FindPlatformAdmin(ctx context.Context, userID uuid.UUID) (*models.PlatformAdmin, error) {
	return first[models.PlatformAdmin](ctx, s.db, "user_id = ?", userID)
}

func (s *GormStore) FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return first[models.Organization](ctx, s.db, "id = ?", id)
}

// LatestSubscription returns the current subscription: the most recently
// created row for the organization.
func (s *GormStore) LatestSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Limit(1).
		Find(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == uuid.Nil {
		return nil, nil
	}
	return &sub, nil
}

func (s *GormStore) FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return first[models.Plan](ctx, s.db, "id = ?", id)
}

func (s *GormStore) ListPermissions(ctx context.Context, profileID uuid.UUID) ([]models.ProfileObjectPermission, error) {
	var rows []models.ProfileObjectPermission
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListProfileButtons(ctx context.Context, profileID uuid.UUID) ([]models.ProfileButton, error) {
	var rows []models.ProfileButton
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListProfileNavigationItems(ctx context.Context, profileID uuid.UUID) ([]models.ProfileNavigationItem, error) {
	var rows []models.ProfileNavigationItem
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListButtons(ctx context.Context, objectTypes []string) ([]models.Button, error) {
	var rows []models.Button
	if objectTypes != nil && len(objectTypes) == 0 {
		return rows, nil
	}
	query := s.db.WithContext(ctx).Order("sort_order ASC, key ASC")
	if objectTypes != nil {
		query = query.Where("object_type IN ?", objectTypes)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListNavigationItems(ctx context.Context, objectTypes []string) ([]models.NavigationItem, error) {
	var rows []models.NavigationItem
	if objectTypes != nil && len(objectTypes) == 0 {
		return rows, nil
	}
	query := s.db.WithContext(ctx).Order("sort_order ASC, key ASC")
	if objectTypes != nil {
		query = query.Where("object_type IN ?", objectTypes)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (s *GormStore) FindButtonByKey(ctx context.Context, key string) (*models.Button, error) {
	return first[models.Button](ctx, s.db, "key = ?", key)
}

func (s *GormStore) FindNavigationItemByKey(ctx context.Context, key string) (*models.NavigationItem, error) {
	return first[models.NavigationItem](ctx, s.db, "key = ?", key)
}

func (s *GormStore) ListProfileIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Profile{}).Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// UpsertProfileButton writes the enabled/visible pair for (profile, button).
// Custom label, icon and sort order on an existing row are left alone.
func (s *GormStore) UpsertProfileButton(ctx context.Context, row *models.ProfileButton) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}, {Name: "button_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_enabled", "is_visible", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upserting profile button: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertProfileNavigationItem(ctx context.Context, row *models.ProfileNavigationItem) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}, {Name: "navigation_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_enabled", "is_visible", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upserting profile navigation item: %w", err)
	}
	return nil
}
