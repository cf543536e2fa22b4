package access

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/pkg/metrics"
)

// AdminStatus is the platform-level authority held by a user.
type AdminStatus struct {
	IsSuperAdmin  bool `json:"is_super_admin"`
	IsGlobalAdmin bool `json:"is_global_admin"`
}

type Classifier struct {
	registry AdminRegistry
	logger   *slog.Logger
}

func NewClassifier(registry AdminRegistry, logger *slog.Logger) *Classifier {
	return &Classifier{registry: registry, logger: logger}
}

// Classify looks the user up in the platform-admin registry. A lookup error
// yields no elevated privilege.
func (c *Classifier) Classify(ctx context.Context, userID uuid.UUID) AdminStatus {
	if userID == uuid.Nil {
		return AdminStatus{}
	}

	admin, err := cachedLookup(ctx, "admin:"+userID.String(), func() (*models.PlatformAdmin, error) {
		return c.registry.FindPlatformAdmin(ctx, userID)
	})
	if err != nil {
		metrics.RecordLookupFailure("classifier")
		c.logger.Warn("platform admin lookup failed, treating as non-admin",
			"user_id", userID, "error", err)
		return AdminStatus{}
	}
	if admin == nil {
		return AdminStatus{}
	}

	return AdminStatus{
		IsSuperAdmin:  admin.IsSuperAdmin,
		IsGlobalAdmin: admin.IsGlobalAdmin,
	}
}
