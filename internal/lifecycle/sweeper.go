package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/internal/notify"
	"github.com/hugh/rentwise/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidTransition    = errors.New("invalid subscription status transition")
	ErrConcurrentUpdate     = errors.New("subscription status changed concurrently")
)

const (
	StageTransition = "transition"
	StageNotify     = "notify"
)

type SweepFailure struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Stage          string    `json:"stage"`
	Error          string    `json:"error"`
}

type SweepReport struct {
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Scanned      int            `json:"scanned"`
	Transitioned int            `json:"transitioned"`
	Failures     []SweepFailure `json:"failures,omitempty"`
}

type Options struct {
	Grace       time.Duration
	Concurrency int
	// Now overrides the clock; tests pin it.
	Now func() time.Time
}

// Sweeper moves lapsed subscriptions to expired (or canceled, when they were
// marked to cancel) and announces each change. Organizations are processed
// independently: one failure or slow notification does not stop the others.
type Sweeper struct {
	store       Store
	publisher   notify.Publisher
	grace       time.Duration
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

func NewSweeper(store Store, publisher notify.Publisher, opts Options, logger *slog.Logger) *Sweeper {
	if opts.Grace <= 0 {
		opts.Grace = access.GracePeriod
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		store:       store,
		publisher:   publisher,
		grace:       opts.Grace,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		logger:      logger,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	defer metrics.TrackSweep()()

	now := s.now()
	report := &SweepReport{StartedAt: now}

	subs, err := s.store.ListNonTerminal(ctx)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(subs)

	var mu sync.Mutex
	fail := func(sub *models.Subscription, stage string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failures = append(report.Failures, SweepFailure{
			SubscriptionID: sub.ID,
			OrganizationID: sub.OrganizationID,
			Stage:          stage,
			Error:          err.Error(),
		})
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i := range subs {
		sub := &subs[i]
		if !access.IsLapsed(sub, now, s.grace) {
			continue
		}

		g.Go(func() error {
			to := access.ExpiryTarget(sub)
			ok, err := s.store.Transition(ctx, sub.ID, sub.Status, to, now)
			if err != nil {
				s.logger.Error("subscription transition failed",
					"subscription_id", sub.ID, "org_id", sub.OrganizationID, "error", err)
				fail(sub, StageTransition, err)
				return nil
			}
			if !ok {
				s.logger.Info("subscription changed during sweep, skipping",
					"subscription_id", sub.ID, "org_id", sub.OrganizationID)
				return nil
			}

			metrics.SweepTransitions.WithLabelValues(string(to)).Inc()
			mu.Lock()
			report.Transitioned++
			mu.Unlock()

			event := notify.SubscriptionEvent{
				Type:           notify.EventFor(to),
				SubscriptionID: sub.ID,
				OrganizationID: sub.OrganizationID,
				From:           sub.Status,
				To:             to,
				OccurredAt:     now,
			}
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Warn("subscription notification failed",
					"subscription_id", sub.ID, "org_id", sub.OrganizationID, "error", err)
				fail(sub, StageNotify, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = s.now()
	s.logger.Info("subscription sweep completed",
		"scanned", report.Scanned,
		"transitioned", report.Transitioned,
		"failures", len(report.Failures),
	)
	return report, nil
}

// ChangeStatus applies an admin-initiated transition. The update only lands
// if the row still holds the status that was validated.
func (s *Sweeper) ChangeStatus(ctx context.Context, id uuid.UUID, to models.SubscriptionStatus) (*models.Subscription, error) {
	sub, err := s.store.FindSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	if !access.CanTransition(sub.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, to)
	}

	now := s.now()
	ok, err := s.store.Transition(ctx, sub.ID, sub.Status, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	event := notify.SubscriptionEvent{
		Type:           notify.EventFor(to),
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		From:           sub.Status,
		To:             to,
		OccurredAt:     now,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("subscription notification failed",
			"subscription_id", sub.ID, "org_id", sub.OrganizationID, "error", err)
	}

	sub.Status = to
	if to == models.SubscriptionStatusCanceled {
		sub.CanceledAt = &now
	}
	return sub, nil
}
