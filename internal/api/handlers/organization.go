package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/api/dto"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/database/models"
	"gorm.io/gorm"
)

type OrganizationHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewOrganizationHandler(db *gorm.DB, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{db: db, logger: logger}
}

// Setup completes guided setup. It flips is_configured exactly once; a second
// call, or a race with another admin, gets 409.
func (h *OrganizationHandler) Setup(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	if orgID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "No organization assigned")
		return
	}

	var req dto.OrganizationSetupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	updates := map[string]interface{}{"is_configured": true}
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if req.Country != "" {
		updates["country"] = strings.ToUpper(req.Country)
	}
	if req.CustomDomain != nil {
		updates["custom_domain"] = strings.ToLower(*req.CustomDomain)
	}

	var org models.Organization
	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if domain, ok := updates["custom_domain"]; ok {
			var taken int64
			if err := tx.Model(&models.Organization{}).
				Where("custom_domain = ? AND id <> ?", domain, orgID).
				Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return errDomainTaken
			}
		}

		result := tx.Model(&models.Organization{}).
			Where("id = ? AND (is_configured IS NULL OR is_configured = ?)", orgID, false).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errAlreadyConfigured
		}
		return tx.First(&org, "id = ?", orgID).Error
	})

	switch {
	case errors.Is(err, errAlreadyConfigured):
		writeError(w, http.StatusConflict, "Organization is already configured")
		return
	case errors.Is(err, errDomainTaken):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Error:   "Custom domain already in use",
			Details: map[string]string{"custom_domain": "already in use"},
		})
		return
	case err != nil:
		h.logger.Error("organization setup failed", "org_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to complete setup")
		return
	}

	h.logger.Info("organization setup completed", "org_id", orgID)
	writeJSON(w, http.StatusOK, dto.NewOrganizationResponse(&org))
}

var (
	errAlreadyConfigured = errors.New("organization already configured")
	errDomainTaken       = errors.New("custom domain taken")
)
