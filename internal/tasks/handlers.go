package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/lifecycle"
)

type Handler struct {
	logger  *slog.Logger
	syncer  *access.Synchronizer
	sweeper *lifecycle.Sweeper
}

func NewHandler(syncer *access.Synchronizer, sweeper *lifecycle.Sweeper, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		syncer:  syncer,
		sweeper: sweeper,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeProfileSync, h.HandleProfileSync)
	mux.HandleFunc(TypeSubscriptionSweep, h.HandleSubscriptionSweep)
}

func (h *Handler) HandleProfileSync(ctx context.Context, t *asynq.Task) error {
	var payload ProfileSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if payload.ProfileID == nil {
		h.logger.Info("starting sync of all profiles", "requested_by", payload.RequestedBy)

		reports, err := h.syncer.SynchronizeAll(ctx)
		if err != nil {
			return fmt.Errorf("synchronize all profiles: %w", err)
		}
		h.logger.Info("all profiles synchronized", "profiles", len(reports))
		return nil
	}

	h.logger.Info("starting profile sync",
		"profile_id", *payload.ProfileID,
		"requested_by", payload.RequestedBy,
	)

	// Partial failures are in the report; the next sync repairs those rows.
	if _, err := h.syncer.Synchronize(ctx, *payload.ProfileID); err != nil {
		return fmt.Errorf("synchronize profile %s: %w", *payload.ProfileID, err)
	}
	return nil
}

func (h *Handler) HandleSubscriptionSweep(ctx context.Context, t *asynq.Task) error {
	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("subscription sweep: %w", err)
	}

	for _, f := range report.Failures {
		h.logger.Warn("sweep failure",
			"subscription_id", f.SubscriptionID,
			"org_id", f.OrganizationID,
			"stage", f.Stage,
			"error", f.Error,
		)
	}
	return nil
}
