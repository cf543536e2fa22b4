package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventSubscriptionExpired       EventType = "subscription.expired"
	EventSubscriptionCanceled      EventType = "subscription.canceled"
	EventSubscriptionStatusChanged EventType = "subscription.status_changed"
)

// SubscriptionEvent is published after a subscription status change has
// been committed. A downstream mailer turns it into email.
type SubscriptionEvent struct {
	Type           EventType                 `json:"type"`
	SubscriptionID uuid.UUID                 `json:"subscription_id"`
	OrganizationID uuid.UUID                 `json:"organization_id"`
	From           models.SubscriptionStatus `json:"from"`
	To             models.SubscriptionStatus `json:"to"`
	OccurredAt     time.Time                 `json:"occurred_at"`
}

// EventFor picks the event type for a transition into to.
func EventFor(to models.SubscriptionStatus) EventType {
	switch to {
	case models.SubscriptionStatusExpired:
		return EventSubscriptionExpired
	case models.SubscriptionStatusCanceled:
		return EventSubscriptionCanceled
	}
	return EventSubscriptionStatusChanged
}

type Publisher interface {
	Publish(ctx context.Context, event SubscriptionEvent) error
}

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events on a shared channel and on a per-organization
// channel "<channel>:<organization id>".
type RedisPublisher struct {
	client  redisClient
	channel string
}

func NewRedisPublisher(client redisClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event SubscriptionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	orgChannel := fmt.Sprintf("%s:%s", p.channel, event.OrganizationID)
	if err := p.client.Publish(ctx, orgChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", orgChannel, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// LogPublisher logs events. Used when no Redis is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event SubscriptionEvent) error {
	p.logger.Info("subscription event",
		"type", event.Type,
		"subscription_id", event.SubscriptionID,
		"org_id", event.OrganizationID,
		"from", event.From,
		"to", event.To,
	)
	return nil
}
