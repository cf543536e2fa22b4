package models

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// NonTerminalStatuses are the statuses the expiry sweep looks at.
var NonTerminalStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusTrialing,
	SubscriptionStatusPastDue,
	SubscriptionStatusUnpaid,
}

func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled, SubscriptionStatusUnpaid, SubscriptionStatusExpired:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further transition is possible.
// Reactivation creates a new subscription row instead.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

// GrantsAccess reports whether the status allows using the organization.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

type Subscription struct {
	Base
	OrganizationID    uuid.UUID          `gorm:"type:uuid;index;not null" json:"organization_id"`
	PlanID            *uuid.UUID         `gorm:"type:uuid;index" json:"plan_id,omitempty"`
	Status            SubscriptionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	CurrentPeriodEnd  time.Time          `json:"current_period_end"`
	EndDate           *time.Time         `json:"end_date,omitempty"`
	CancelAtPeriodEnd bool               `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt        *time.Time         `json:"canceled_at,omitempty"`

	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
