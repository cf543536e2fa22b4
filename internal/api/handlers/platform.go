package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/dto"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/database/models"
	"github.com/hugh/rentwise/internal/lifecycle"
	"github.com/hugh/rentwise/internal/tasks"
	"github.com/hugh/rentwise/pkg/queue"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlatformHandler serves the super-admin surface: plans, the UI catalog,
// subscription status and the maintenance jobs.
type PlatformHandler struct {
	db      *gorm.DB
	syncer  *access.Synchronizer
	sweeper *lifecycle.Sweeper
	queue   TaskEnqueuer
	logger  *slog.Logger
}

func NewPlatformHandler(db *gorm.DB, syncer *access.Synchronizer, sweeper *lifecycle.Sweeper, queue TaskEnqueuer, logger *slog.Logger) *PlatformHandler {
	return &PlatformHandler{db: db, syncer: syncer, sweeper: sweeper, queue: queue, logger: logger}
}

func (h *PlatformHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	var plans []models.Plan
	if err := h.db.WithContext(r.Context()).Order("monthly_price ASC, name ASC").Find(&plans).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch plans")
		return
	}

	out := make([]dto.PlanResponse, len(plans))
	for i := range plans {
		out[i] = dto.NewPlanResponse(&plans[i])
	}
	writeJSON(w, http.StatusOK, dto.NewList(out))
}

func (h *PlatformHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req dto.PlanRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if h.planNameTaken(w, r, req.Name, uuid.Nil) {
		return
	}

	plan := models.Plan{}
	applyPlan(&plan, &req)

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&plan).Error; err != nil {
			return err
		}
		// is_active has a column default, so an explicit false is written
		// after the insert.
		if !plan.IsActive {
			return tx.Model(&plan).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		h.logger.Error("plan create failed", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create plan")
		return
	}

	h.logger.Info("plan created", "plan_id", plan.ID, "name", plan.Name, "by", middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusCreated, dto.NewPlanResponse(&plan))
}

// UpdatePlan replaces every field of the plan. Subscriptions pick the change
// up on their next resolution.
func (h *PlatformHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "plan")
	if !ok {
		return
	}

	var plan models.Plan
	if err := h.db.WithContext(r.Context()).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Plan not found")
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to fetch plan")
		}
		return
	}

	var req dto.PlanRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if h.planNameTaken(w, r, req.Name, plan.ID) {
		return
	}

	applyPlan(&plan, &req)
	if err := h.db.WithContext(r.Context()).Save(&plan).Error; err != nil {
		h.logger.Error("plan update failed", "plan_id", plan.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update plan")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPlanResponse(&plan))
}

func applyPlan(plan *models.Plan, req *dto.PlanRequest) {
	features := req.Features
	if features == nil {
		features = models.PlanFeatures{}
	}

	plan.Name = req.Name
	plan.DisplayName = strings.TrimSpace(req.DisplayName)
	plan.MonthlyPrice = req.MonthlyPrice
	plan.IsActive = req.IsActive == nil || *req.IsActive
	plan.MaxLots = req.MaxLots
	plan.MaxUsers = req.MaxUsers
	plan.MaxExtranetTenants = req.MaxExtranetTenants
	plan.Features = datatypes.NewJSONType(features)
}

func (h *PlatformHandler) planNameTaken(w http.ResponseWriter, r *http.Request, name string, except uuid.UUID) bool {
	var n int64
	if err := h.db.WithContext(r.Context()).Unscoped().Model(&models.Plan{}).
		Where("name = ? AND id <> ?", name, except).Count(&n).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check plan name")
		return true
	}
	if n > 0 {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Error:   "Plan name already exists",
			Details: map[string]string{"name": "is already taken"},
		})
		return true
	}
	return false
}

func (h *PlatformHandler) ListButtons(w http.ResponseWriter, r *http.Request) {
	var buttons []models.Button
	if err := h.db.WithContext(r.Context()).Order("sort_order ASC, key ASC").Find(&buttons).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch buttons")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(buttons))
}

func (h *PlatformHandler) CreateButton(w http.ResponseWriter, r *http.Request) {
	var req dto.CatalogRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if h.catalogKeyTaken(w, r, &models.Button{}, req.Key, uuid.Nil) {
		return
	}

	button := models.Button{
		Key:             req.Key,
		Label:           cleanText(req.Label),
		Icon:            cleanText(req.Icon),
		ObjectType:      req.ObjectType,
		Action:          req.Action,
		RequiredFeature: req.RequiredFeature,
		SortOrder:       req.SortOrder,
	}
	if err := h.db.WithContext(r.Context()).Create(&button).Error; err != nil {
		h.logger.Error("button create failed", "key", req.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create button")
		return
	}
	writeJSON(w, http.StatusCreated, button)
}

func (h *PlatformHandler) UpdateButton(w http.ResponseWriter, r *http.Request) {
	var button models.Button
	if !h.loadCatalogEntry(w, r, &button, "button") {
		return
	}

	var req dto.CatalogRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if !h.checkCatalogKey(w, r, &models.Button{}, button.ID, button.Key, button.IsSystem, req.Key) {
		return
	}

	button.Key = req.Key
	button.Label = cleanText(req.Label)
	button.Icon = cleanText(req.Icon)
	button.ObjectType = req.ObjectType
	button.Action = req.Action
	button.RequiredFeature = req.RequiredFeature
	button.SortOrder = req.SortOrder
	if err := h.db.WithContext(r.Context()).Save(&button).Error; err != nil {
		h.logger.Error("button update failed", "button_id", button.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update button")
		return
	}
	writeJSON(w, http.StatusOK, button)
}

func (h *PlatformHandler) DeleteButton(w http.ResponseWriter, r *http.Request) {
	var button models.Button
	if !h.loadCatalogEntry(w, r, &button, "button") {
		return
	}
	if button.IsSystem {
		writeError(w, http.StatusConflict, "System buttons cannot be deleted")
		return
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("button_id = ?", button.ID).Delete(&models.ProfileButton{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&button).Error
	})
	if err != nil {
		h.logger.Error("button delete failed", "button_id", button.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete button")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Button deleted"})
}

func (h *PlatformHandler) ListNavigationItems(w http.ResponseWriter, r *http.Request) {
	var items []models.NavigationItem
	if err := h.db.WithContext(r.Context()).Order("sort_order ASC, key ASC").Find(&items).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch navigation items")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(items))
}

func (h *PlatformHandler) CreateNavigationItem(w http.ResponseWriter, r *http.Request) {
	var req dto.CatalogRequest
	if !decodeNavigation(w, r, &req) {
		return
	}
	if h.catalogKeyTaken(w, r, &models.NavigationItem{}, req.Key, uuid.Nil) {
		return
	}

	item := models.NavigationItem{
		Key:             req.Key,
		Label:           cleanText(req.Label),
		Icon:            cleanText(req.Icon),
		Path:            access.NormalizePath(req.Path),
		ObjectType:      req.ObjectType,
		Action:          req.Action,
		RequiredFeature: req.RequiredFeature,
		SortOrder:       req.SortOrder,
	}
	if err := h.db.WithContext(r.Context()).Create(&item).Error; err != nil {
		h.logger.Error("navigation item create failed", "key", req.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create navigation item")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *PlatformHandler) UpdateNavigationItem(w http.ResponseWriter, r *http.Request) {
	var item models.NavigationItem
	if !h.loadCatalogEntry(w, r, &item, "navigation item") {
		return
	}

	var req dto.CatalogRequest
	if !decodeNavigation(w, r, &req) {
		return
	}
	if !h.checkCatalogKey(w, r, &models.NavigationItem{}, item.ID, item.Key, item.IsSystem, req.Key) {
		return
	}

	item.Key = req.Key
	item.Label = cleanText(req.Label)
	item.Icon = cleanText(req.Icon)
	item.Path = access.NormalizePath(req.Path)
	item.ObjectType = req.ObjectType
	item.Action = req.Action
	item.RequiredFeature = req.RequiredFeature
	item.SortOrder = req.SortOrder
	if err := h.db.WithContext(r.Context()).Save(&item).Error; err != nil {
		h.logger.Error("navigation item update failed", "item_id", item.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update navigation item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *PlatformHandler) DeleteNavigationItem(w http.ResponseWriter, r *http.Request) {
	var item models.NavigationItem
	if !h.loadCatalogEntry(w, r, &item, "navigation item") {
		return
	}
	if item.IsSystem {
		writeError(w, http.StatusConflict, "System navigation items cannot be deleted")
		return
	}

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("navigation_item_id = ?", item.ID).Delete(&models.ProfileNavigationItem{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&item).Error
	})
	if err != nil {
		h.logger.Error("navigation item delete failed", "item_id", item.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete navigation item")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Navigation item deleted"})
}

func decodeNavigation(w http.ResponseWriter, r *http.Request, req *dto.CatalogRequest) bool {
	if !decodeAndValidate(w, r, req) {
		return false
	}
	if errs := req.ValidateNavigation(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return false
	}
	return true
}

func (h *PlatformHandler) loadCatalogEntry(w http.ResponseWriter, r *http.Request, dest interface{}, what string) bool {
	id, ok := urlID(w, r, "id", what)
	if !ok {
		return false
	}
	if err := h.db.WithContext(r.Context()).Where("id = ?", id).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, strings.ToUpper(what[:1])+what[1:]+" not found")
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to fetch "+what)
		}
		return false
	}
	return true
}

// checkCatalogKey enforces that system entries keep their key and that a new
// key is free.
func (h *PlatformHandler) checkCatalogKey(w http.ResponseWriter, r *http.Request, model interface{}, id uuid.UUID, current string, system bool, next string) bool {
	if next == current {
		return true
	}
	if system {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"key": "cannot change the key of a system entry"},
		})
		return false
	}
	return !h.catalogKeyTaken(w, r, model, next, id)
}

// catalogKeyTaken also sees soft-deleted rows since they still hold the
// unique index.
func (h *PlatformHandler) catalogKeyTaken(w http.ResponseWriter, r *http.Request, model interface{}, key string, except uuid.UUID) bool {
	var n int64
	if err := h.db.WithContext(r.Context()).Unscoped().Model(model).
		Where("key = ? AND id <> ?", key, except).Count(&n).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check key")
		return true
	}
	if n > 0 {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Error:   "Key already exists",
			Details: map[string]string{"key": "is already taken"},
		})
		return true
	}
	return false
}

// SetSubscriptionStatus applies an administrative status transition.
func (h *PlatformHandler) SetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "subscription")
	if !ok {
		return
	}

	var req dto.SubscriptionStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	to, _ := models.ParseSubscriptionStatus(req.Status)

	sub, err := h.sweeper.ChangeStatus(r.Context(), id, to)
	switch {
	case err == nil:
	case errors.Is(err, lifecycle.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Error:   "Invalid status transition",
			Details: map[string]string{"status": err.Error()},
		})
		return
	case errors.Is(err, lifecycle.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "Subscription changed concurrently, retry")
		return
	default:
		h.logger.Error("subscription status change failed", "subscription_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to change subscription status")
		return
	}

	h.logger.Info("subscription status changed",
		"subscription_id", sub.ID,
		"org_id", sub.OrganizationID,
		"status", sub.Status,
		"by", middleware.GetUserID(r.Context()),
	)
	writeJSON(w, http.StatusOK, sub)
}

// SyncAll resynchronizes every profile, in the background when a queue is
// configured.
func (h *PlatformHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	if h.queue != nil {
		task, err := tasks.NewProfileSyncTask(tasks.ProfileSyncPayload{
			RequestedBy: middleware.GetUserID(r.Context()),
		})
		if err == nil {
			var info *asynq.TaskInfo
			info, err = h.queue.EnqueueContext(r.Context(), task,
				asynq.Queue(queue.QueueDefault),
				asynq.Timeout(30*time.Minute),
			)
			if err == nil {
				writeJSON(w, http.StatusAccepted, dto.SyncResponse{Queued: true, TaskID: info.ID})
				return
			}
		}
		h.logger.Warn("enqueue full sync failed, running inline", "error", err)
	}

	reports, err := h.syncer.SynchronizeAll(r.Context())
	if err != nil {
		h.logger.Error("full sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Synchronization failed")
		return
	}
	writeJSON(w, http.StatusOK, dto.SyncResponse{Reports: reports})
}

// Sweep runs the expiry sweep now. Queued runs report only the task ID.
func (h *PlatformHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.queue != nil {
		info, err := h.queue.EnqueueContext(r.Context(), tasks.NewSubscriptionSweepTask(),
			asynq.Queue(queue.QueueLow),
		)
		if err == nil {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": true, "task_id": info.ID})
			return
		}
		h.logger.Warn("enqueue sweep failed, running inline", "error", err)
	}

	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
