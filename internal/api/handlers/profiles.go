package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/dto"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/internal/tasks"
	"github.com/hugh/rentwise/pkg/queue"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileHandler administers an organization's profiles. Routes are guarded
// by read or edit permission on the profile object; global profiles are
// readable by everyone and writable only by super-admins and global admins.
type ProfileHandler struct {
	db     *gorm.DB
	engine *access.Engine
	syncer *access.Synchronizer
	queue  TaskEnqueuer
	logger *slog.Logger
}

// NewProfileHandler wires the handler. A nil queue runs synchronization inline.
func NewProfileHandler(db *gorm.DB, engine *access.Engine, syncer *access.Synchronizer, queue TaskEnqueuer, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{db: db, engine: engine, syncer: syncer, queue: queue, logger: logger}
}

func (h *ProfileHandler) isSuperAdmin(r *http.Request) bool {
	subject := middleware.GetSubject(r.Context())
	return subject.Authenticated() && h.engine.Classifier().Classify(r.Context(), subject.UserID).IsSuperAdmin
}

// managesGlobalProfiles reports whether the caller holds platform authority
// over profiles shared by every organization.
func (h *ProfileHandler) managesGlobalProfiles(r *http.Request) bool {
	subject := middleware.GetSubject(r.Context())
	if !subject.Authenticated() {
		return false
	}
	status := h.engine.Classifier().Classify(r.Context(), subject.UserID)
	return status.IsSuperAdmin || status.IsGlobalAdmin
}

func (h *ProfileHandler) visible(r *http.Request) *gorm.DB {
	q := h.db.WithContext(r.Context()).Model(&models.Profile{})
	if h.isSuperAdmin(r) {
		return q
	}
	return q.Where("organization_id = ? OR is_global = ?", middleware.GetOrganizationID(r.Context()), true)
}

// loadProfile resolves the {id} profile within the caller's scope and writes
// the error response itself when it cannot.
func (h *ProfileHandler) loadProfile(w http.ResponseWriter, r *http.Request, write bool) (*models.Profile, bool) {
	id, ok := urlID(w, r, "id", "profile")
	if !ok {
		return nil, false
	}

	var profile models.Profile
	if err := h.visible(r).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		}
		return nil, false
	}

	if write && profile.OrganizationID == nil && !h.managesGlobalProfiles(r) {
		writeError(w, http.StatusForbidden, "Global profiles are managed by the platform")
		return nil, false
	}
	return &profile, true
}

func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	var profiles []models.Profile
	if err := h.visible(r).Order("name ASC").Find(&profiles).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch profiles")
		return
	}

	out := make([]dto.ProfileResponse, len(profiles))
	for i := range profiles {
		out[i] = dto.NewProfileResponse(&profiles[i])
	}
	writeJSON(w, http.StatusOK, dto.NewList(out))
}

// Delete removes a profile and its permission and override rows. System
// profiles and profiles still assigned to users are refused.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, true)
	if !ok {
		return
	}
	if profile.IsSystemProfile {
		writeError(w, http.StatusConflict, "System profiles cannot be deleted")
		return
	}

	var assigned int64
	if err := h.db.WithContext(r.Context()).Model(&models.User{}).
		Where("profile_id = ?", profile.ID).Count(&assigned).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}
	if assigned > 0 {
		writeError(w, http.StatusConflict, "Profile is still assigned to users")
		return
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		for _, row := range []interface{}{
			&models.ProfileObjectPermission{},
			&models.ProfileButton{},
			&models.ProfileNavigationItem{},
		} {
			if err := tx.Where("profile_id = ?", profile.ID).Delete(row).Error; err != nil {
				return err
			}
		}
		return tx.Delete(profile).Error
	})
	if err != nil {
		h.logger.Error("profile delete failed", "profile_id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Profile deleted"})
}

func (h *ProfileHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, false)
	if !ok {
		return
	}

	matrix, err := h.engine.Permissions().PermissionsFor(r.Context(), profile.ID)
	if err != nil {
		writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(dto.NewPermissionList(matrix)))
}

// PutPermissions replaces the profile's matrix. UI overrides are left alone;
// resynchronizing them is a separate, explicit action.
func (h *ProfileHandler) PutPermissions(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, true)
	if !ok {
		return
	}

	var req dto.PermissionsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rows := make([]models.ProfileObjectPermission, len(req.Permissions))
	for i, p := range req.Permissions {
		rows[i] = models.ProfileObjectPermission{
			ProfileID:  profile.ID,
			ObjectType: p.ObjectType,
			CanCreate:  p.CanCreate,
			CanRead:    p.CanRead,
			CanEdit:    p.CanEdit,
			CanDelete:  p.CanDelete,
		}
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("profile_id = ?", profile.ID).Delete(&models.ProfileObjectPermission{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		h.logger.Error("permission update failed", "profile_id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update permissions")
		return
	}

	h.logger.Info("profile permissions replaced",
		"profile_id", profile.ID,
		"object_types", len(rows),
		"by", middleware.GetUserID(r.Context()),
	)

	out := make([]dto.PermissionDTO, len(req.Permissions))
	copy(out, req.Permissions)
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectType < out[j].ObjectType })
	writeJSON(w, http.StatusOK, dto.NewList(out))
}

func (h *ProfileHandler) GetOverrides(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, false)
	if !ok {
		return
	}

	set, err := h.engine.Overrides().OverridesFor(r.Context(), profile.ID)
	if err != nil {
		writeAccessError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OverridesResponse{
		Buttons:         sortedOverrides(set.Buttons),
		NavigationItems: sortedOverrides(set.NavigationItems),
	})
}

func sortedOverrides(m map[uuid.UUID]access.Override) []access.Override {
	out := make([]access.Override, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID.String() < out[j].TargetID.String() })
	return out
}

// SetButtonOverride writes one manual override. It can only narrow what the
// permission matrix allows; the engine applies the matrix as a floor.
func (h *ProfileHandler) SetButtonOverride(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, true)
	if !ok {
		return
	}
	buttonID, ok := urlID(w, r, "buttonID", "button")
	if !ok {
		return
	}
	if !h.exists(w, r, &models.Button{}, buttonID, "Button not found") {
		return
	}

	var req dto.OverrideRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.CustomLabel = cleanOptional(req.CustomLabel)
	req.CustomIcon = cleanOptional(req.CustomIcon)

	row := models.ProfileButton{
		ProfileID:   profile.ID,
		ButtonID:    buttonID,
		IsEnabled:   *req.IsEnabled,
		IsVisible:   *req.IsVisible,
		CustomLabel: req.CustomLabel,
		CustomIcon:  req.CustomIcon,
		SortOrder:   req.SortOrder,
	}
	if err := h.upsertOverride(r, &row, "button_id"); err != nil {
		h.logger.Error("button override failed", "profile_id", profile.ID, "button_id", buttonID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save override")
		return
	}

	writeJSON(w, http.StatusOK, overrideResponse(buttonID, row.IsEnabled, row.IsVisible, req))
}

func (h *ProfileHandler) SetNavigationOverride(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, true)
	if !ok {
		return
	}
	itemID, ok := urlID(w, r, "itemID", "navigation item")
	if !ok {
		return
	}
	if !h.exists(w, r, &models.NavigationItem{}, itemID, "Navigation item not found") {
		return
	}

	var req dto.OverrideRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.CustomLabel = cleanOptional(req.CustomLabel)
	req.CustomIcon = cleanOptional(req.CustomIcon)

	row := models.ProfileNavigationItem{
		ProfileID:        profile.ID,
		NavigationItemID: itemID,
		IsEnabled:        *req.IsEnabled,
		IsVisible:        *req.IsVisible,
		CustomLabel:      req.CustomLabel,
		CustomIcon:       req.CustomIcon,
		SortOrder:        req.SortOrder,
	}
	if err := h.upsertOverride(r, &row, "navigation_item_id"); err != nil {
		h.logger.Error("navigation override failed", "profile_id", profile.ID, "item_id", itemID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save override")
		return
	}

	writeJSON(w, http.StatusOK, overrideResponse(itemID, row.IsEnabled, row.IsVisible, req))
}

func (h *ProfileHandler) exists(w http.ResponseWriter, r *http.Request, model interface{}, id uuid.UUID, notFound string) bool {
	var n int64
	if err := h.db.WithContext(r.Context()).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch catalog entry")
		return false
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, notFound)
		return false
	}
	return true
}

// upsertOverride writes every override column, unlike the synchronization
// job which only touches the enabled and visible flags.
func (h *ProfileHandler) upsertOverride(r *http.Request, row interface{}, targetColumn string) error {
	return h.db.WithContext(r.Context()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "profile_id"}, {Name: targetColumn}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_enabled", "is_visible", "custom_label", "custom_icon", "sort_order", "updated_at",
		}),
	}).Create(row).Error
}

func overrideResponse(id uuid.UUID, enabled, visible bool, req dto.OverrideRequest) access.Override {
	return access.Override{
		TargetID:    id,
		IsEnabled:   enabled,
		IsVisible:   visible,
		CustomLabel: req.CustomLabel,
		CustomIcon:  req.CustomIcon,
		SortOrder:   req.SortOrder,
	}
}

// Sync recomputes the profile's overrides from its permission matrix,
// discarding manual customization of the enabled and visible flags.
func (h *ProfileHandler) Sync(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r, true)
	if !ok {
		return
	}

	if h.queue != nil {
		task, err := tasks.NewProfileSyncTask(tasks.ProfileSyncPayload{
			ProfileID:   &profile.ID,
			RequestedBy: middleware.GetUserID(r.Context()),
		})
		if err == nil {
			var info *asynq.TaskInfo
			info, err = h.queue.EnqueueContext(r.Context(), task,
				asynq.Queue(queue.QueueCritical),
				asynq.Timeout(5*time.Minute),
			)
			if err == nil {
				writeJSON(w, http.StatusAccepted, dto.SyncResponse{Queued: true, TaskID: info.ID})
				return
			}
		}
		h.logger.Warn("enqueue profile sync failed, running inline", "profile_id", profile.ID, "error", err)
	}

	report, err := h.syncer.Synchronize(r.Context(), profile.ID)
	if err != nil {
		h.logger.Error("profile sync failed", "profile_id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Synchronization failed")
		return
	}
	writeJSON(w, http.StatusOK, dto.SyncResponse{Reports: []*access.SyncReport{report}})
}
