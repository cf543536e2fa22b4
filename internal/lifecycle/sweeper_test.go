package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/internal/lifecycle"
	"github.com/hugh/rentwise/internal/notify"
	"github.com/hugh/rentwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.SubscriptionEvent
	failOn map[uuid.UUID]bool
}

func (p *recordingPublisher) Publish(ctx context.Context, event notify.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[event.OrganizationID] {
		return errors.New("smtp relay down")
	}
	p.events = append(p.events, event)
	return nil
}

var sweepNow = time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

func createSubscription(t *testing.T, db *gorm.DB, status models.SubscriptionStatus, periodEnd time.Time, cancelAtPeriodEnd bool) *models.Subscription {
	t.Helper()
	org := testutil.CreateTestOrg(t, db)
	sub := &models.Subscription{
		OrganizationID:    org.ID,
		Status:            status,
		CurrentPeriodEnd:  periodEnd,
		CancelAtPeriodEnd: cancelAtPeriodEnd,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, db.First(&sub, "id = ?", id).Error)
	return &sub
}

func newSweeper(store lifecycle.Store, pub notify.Publisher) *lifecycle.Sweeper {
	return lifecycle.NewSweeper(store, pub, lifecycle.Options{
		Concurrency: 3,
		Now:         func() time.Time { return sweepNow },
	}, testutil.Logger())
}

func TestSweeper_GraceBoundary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	grace := 5 * 24 * time.Hour
	lapsed := createSubscription(t, db, models.SubscriptionStatusActive, sweepNow.Add(-(grace + time.Second)), false)
	withinGrace := createSubscription(t, db, models.SubscriptionStatusActive, sweepNow.Add(-(grace - time.Second)), false)
	current := createSubscription(t, db, models.SubscriptionStatusTrialing, sweepNow.Add(24*time.Hour), false)

	pub := &recordingPublisher{}
	report, err := newSweeper(lifecycle.NewGormStore(db), pub).Sweep(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Transitioned)
	assert.Empty(t, report.Failures)

	assert.Equal(t, models.SubscriptionStatusExpired, reload(t, db, lapsed.ID).Status)
	assert.Equal(t, models.SubscriptionStatusActive, reload(t, db, withinGrace.ID).Status)
	assert.Equal(t, models.SubscriptionStatusTrialing, reload(t, db, current.ID).Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, notify.EventSubscriptionExpired, pub.events[0].Type)
	assert.Equal(t, lapsed.OrganizationID, pub.events[0].OrganizationID)
	assert.Equal(t, models.SubscriptionStatusActive, pub.events[0].From)
}

func TestSweeper_Targets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	longAgo := sweepNow.Add(-30 * 24 * time.Hour)
	cancelling := createSubscription(t, db, models.SubscriptionStatusActive, longAgo, true)
	pastDue := createSubscription(t, db, models.SubscriptionStatusPastDue, longAgo, false)
	unpaid := createSubscription(t, db, models.SubscriptionStatusUnpaid, longAgo, false)
	alreadyCanceled := createSubscription(t, db, models.SubscriptionStatusCanceled, longAgo, true)

	endDate := sweepNow.Add(10 * 24 * time.Hour)
	extended := createSubscription(t, db, models.SubscriptionStatusActive, longAgo, false)
	require.NoError(t, db.Model(extended).Update("end_date", endDate).Error)

	report, err := newSweeper(lifecycle.NewGormStore(db), &recordingPublisher{}).Sweep(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned, "terminal rows are not scanned")
	assert.Equal(t, 3, report.Transitioned)

	got := reload(t, db, cancelling.ID)
	assert.Equal(t, models.SubscriptionStatusCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)
	assert.True(t, got.CanceledAt.Equal(sweepNow))

	assert.Equal(t, models.SubscriptionStatusExpired, reload(t, db, pastDue.ID).Status)
	assert.Equal(t, models.SubscriptionStatusExpired, reload(t, db, unpaid.ID).Status)
	assert.Equal(t, models.SubscriptionStatusCanceled, reload(t, db, alreadyCanceled.ID).Status)
	assert.Equal(t, models.SubscriptionStatusActive, reload(t, db, extended.ID).Status, "explicit end date in the future")
}

func TestSweeper_NotificationFailureKeepsTransition(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	longAgo := sweepNow.Add(-10 * 24 * time.Hour)
	broken := createSubscription(t, db, models.SubscriptionStatusActive, longAgo, false)
	healthy := createSubscription(t, db, models.SubscriptionStatusActive, longAgo, false)

	pub := &recordingPublisher{failOn: map[uuid.UUID]bool{broken.OrganizationID: true}}
	report, err := newSweeper(lifecycle.NewGormStore(db), pub).Sweep(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Transitioned)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, broken.ID, report.Failures[0].SubscriptionID)
	assert.Equal(t, lifecycle.StageNotify, report.Failures[0].Stage)
	assert.Contains(t, report.Failures[0].Error, "smtp relay down")

	assert.Equal(t, models.SubscriptionStatusExpired, reload(t, db, broken.ID).Status)
	assert.Equal(t, models.SubscriptionStatusExpired, reload(t, db, healthy.ID).Status)
	require.Len(t, pub.events, 1)
	assert.Equal(t, healthy.ID, pub.events[0].SubscriptionID)
}

// staleStore serves a listing taken before a concurrent status change.
type staleStore struct {
	*lifecycle.GormStore
	rows []models.Subscription
}

func (s *staleStore) ListNonTerminal(ctx context.Context) ([]models.Subscription, error) {
	return s.rows, nil
}

func TestSweeper_ConcurrentChangeIsNotClobbered(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	sub := createSubscription(t, db, models.SubscriptionStatusPastDue, sweepNow.Add(-20*24*time.Hour), false)
	snapshot := *sub

	// Payment recovered after the listing was taken.
	require.NoError(t, db.Model(sub).Update("status", models.SubscriptionStatusActive).Error)

	store := &staleStore{GormStore: lifecycle.NewGormStore(db), rows: []models.Subscription{snapshot}}
	pub := &recordingPublisher{}
	report, err := newSweeper(store, pub).Sweep(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Zero(t, report.Transitioned)
	assert.Empty(t, report.Failures)
	assert.Empty(t, pub.events)
	assert.Equal(t, models.SubscriptionStatusActive, reload(t, db, sub.ID).Status)
}

func TestSweeper_ChangeStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	pub := &recordingPublisher{}
	sweeper := newSweeper(lifecycle.NewGormStore(db), pub)
	ctx := testutil.TestContext(t)

	sub := createSubscription(t, db, models.SubscriptionStatusTrialing, sweepNow.Add(24*time.Hour), false)

	updated, err := sweeper.ChangeStatus(ctx, sub.ID, models.SubscriptionStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, updated.Status)
	assert.Equal(t, models.SubscriptionStatusActive, reload(t, db, sub.ID).Status)
	require.Len(t, pub.events, 1)
	assert.Equal(t, notify.EventSubscriptionStatusChanged, pub.events[0].Type)

	_, err = sweeper.ChangeStatus(ctx, sub.ID, models.SubscriptionStatusTrialing)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	canceled, err := sweeper.ChangeStatus(ctx, sub.ID, models.SubscriptionStatusCanceled)
	require.NoError(t, err)
	require.NotNil(t, canceled.CanceledAt)

	_, err = sweeper.ChangeStatus(ctx, sub.ID, models.SubscriptionStatusActive)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "canceled is terminal")

	_, err = sweeper.ChangeStatus(ctx, uuid.New(), models.SubscriptionStatusActive)
	assert.ErrorIs(t, err, lifecycle.ErrSubscriptionNotFound)
}
