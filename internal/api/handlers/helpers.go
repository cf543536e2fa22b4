package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/dto"
	"github.com/hugh/rentwise/internal/api/validation"
)

// TaskEnqueuer is the part of *asynq.Client the handlers use.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ TaskEnqueuer = (*asynq.Client)(nil)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// decodeAndValidate reads a JSON body into req and runs its Validate method.
// It writes the 400 response itself and reports whether the caller may go on.
func decodeAndValidate[T interface{ Validate() map[string]string }](w http.ResponseWriter, r *http.Request, req *T) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if errs := (*req).Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return false
	}
	return true
}

func urlID(w http.ResponseWriter, r *http.Request, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Invalid " + what + " ID",
			Details: map[string]string{param: "must be a UUID"},
		})
		return uuid.Nil, false
	}
	return id, true
}

// writeAccessError maps engine errors onto status codes without leaking
// store details.
func writeAccessError(w http.ResponseWriter, err error) {
	var verr *access.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verr.Fields})
	case errors.Is(err, access.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, access.ErrLookupFailure):
		writeError(w, http.StatusServiceUnavailable, "Access data temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// cleanText strips control characters and surrounding blanks from labels
// before they are stored and rendered.
func cleanText(s string) string {
	return strings.TrimSpace(validation.SanitizeString(s))
}

func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := cleanText(*s)
	return &v
}
