package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/dto"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/auth"
)

// AccessHandler exposes the engine's decisions to the browser application.
// Every response is a decision shape; store failures surface as a
// restrictive answer or a 503, never as raw errors.
type AccessHandler struct {
	engine      *access.Engine
	authService auth.Authenticator
	logger      *slog.Logger
}

func NewAccessHandler(engine *access.Engine, authService auth.Authenticator, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{engine: engine, authService: authService, logger: logger}
}

func (h *AccessHandler) Me(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubject(r.Context())

	user, err := h.authService.GetUserByID(r.Context(), subject.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	state, err := h.engine.SubscriptionState(r.Context(), subject)
	if err != nil {
		h.logger.Warn("subscription lookup failed for /me", "user_id", subject.UserID, "error", err)
		state = access.SubscriptionState{}
	}

	admin := h.engine.Classifier().Classify(r.Context(), subject.UserID)
	writeJSON(w, http.StatusOK, dto.MeResponse{
		User:          dto.NewUserDTO(user),
		IsSuperAdmin:  admin.IsSuperAdmin,
		IsGlobalAdmin: admin.IsGlobalAdmin,
		Subscription:  dto.NewSubscriptionResponse(state),
	})
}

// Route answers the route gate for a path without navigating, so the client
// router can apply the same decision.
func (h *AccessHandler) Route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"path": "is required"},
		})
		return
	}

	writeJSON(w, http.StatusOK, h.engine.CanEnterRoute(r.Context(), middleware.GetSubject(r.Context()), path))
}

func (h *AccessHandler) Can(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	details := make(map[string]string)

	objectType, ok := access.ParseObjectType(q.Get("object"))
	if !ok {
		details["object"] = "unknown object type"
	}
	action, ok := access.ParseAction(q.Get("action"))
	if !ok {
		details["action"] = "unknown action"
	}
	if len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
		return
	}

	writeJSON(w, http.StatusOK, dto.CanResponse{
		ObjectType: string(objectType),
		Action:     string(action),
		Allowed:    h.engine.CanPerform(r.Context(), middleware.GetSubject(r.Context()), objectType, action),
	})
}

func (h *AccessHandler) Affordances(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.Affordances(r.Context(), middleware.GetSubject(r.Context()))
	if err != nil {
		writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(items))
}

func (h *AccessHandler) Affordance(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	state := h.engine.AffordanceState(r.Context(), middleware.GetSubject(r.Context()), key)
	writeJSON(w, http.StatusOK, dto.AffordanceResponse{Key: key, AffordanceState: state})
}

func (h *AccessHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.SubscriptionState(r.Context(), middleware.GetSubject(r.Context()))
	if err != nil {
		writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewSubscriptionResponse(state))
}
