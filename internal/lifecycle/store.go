package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"gorm.io/gorm"
)

type Store interface {
	ListNonTerminal(ctx context.Context) ([]models.Subscription, error)
	FindSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// Transition moves a subscription from one status to another. It reports
	// false, without error, when the row no longer holds from.
	Transition(ctx context.Context, id uuid.UUID, from, to models.SubscriptionStatus, at time.Time) (bool, error)
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListNonTerminal(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ?", models.NonTerminalStatuses).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, nil
}

func (s *GormStore) FindSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) Transition(ctx context.Context, id uuid.UUID, from, to models.SubscriptionStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == models.SubscriptionStatusCanceled {
		updates["canceled_at"] = at
	}

	result := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("updating subscription status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
