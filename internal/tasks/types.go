package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeProfileSync       = "access:profile_sync"
	TypeSubscriptionSweep = "billing:subscription_sweep"
)

// ProfileSyncPayload names the profile to resynchronize. A nil ProfileID
// synchronizes every profile.
type ProfileSyncPayload struct {
	ProfileID   *uuid.UUID `json:"profile_id,omitempty"`
	RequestedBy uuid.UUID  `json:"requested_by"`
}

func NewProfileSyncTask(payload ProfileSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProfileSync, data, asynq.MaxRetry(3)), nil
}

// SubscriptionSweepPayload is empty - the sweep scans every non-terminal subscription
type SubscriptionSweepPayload struct{}

func NewSubscriptionSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSubscriptionSweep, nil, asynq.MaxRetry(1))
}
