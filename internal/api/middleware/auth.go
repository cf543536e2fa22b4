package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/auth"
)

type contextKey string

const (
	UserIDKey         contextKey = "user_id"
	OrganizationIDKey contextKey = "organization_id"
	UserEmailKey      contextKey = "user_email"
	SubjectKey        contextKey = "subject"
)

// SignInPath is where unauthenticated page requests are sent.
const SignInPath = "/sign-in"

// tokenFromRequest reads the bearer token from the Authorization header, the
// "token" cookie or the X-Auth-Token header, in that order.
func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get("X-Auth-Token")
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	if claims.OrganizationID != nil {
		ctx = context.WithValue(ctx, OrganizationIDKey, *claims.OrganizationID)
	}
	return context.WithValue(ctx, UserEmailKey, claims.Email)
}

// Auth rejects requests without a valid token and stores the token claims in
// the request context.
func Auth(tokens auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				handleUnauthorized(w, r)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				handleUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// LoadSubject resolves the authenticated user into an access.Subject. It must
// run after Auth. Deactivated or deleted users are treated as signed out.
func LoadSubject(engine *access.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := engine.LoadSubject(r.Context(), GetUserID(r.Context()))
			if err != nil {
				if errors.Is(err, access.ErrUnauthenticated) {
					handleUnauthorized(w, r)
					return
				}
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// handleUnauthorized returns appropriate response based on request type
func handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	isWebRequest := strings.Contains(accept, "text/html") && !strings.HasPrefix(r.URL.Path, "/api/")

	if isWebRequest {
		http.Redirect(w, r, SignInPath, http.StatusFound)
		return
	}

	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// Helper functions to extract values from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetOrganizationID(ctx context.Context) uuid.UUID {
	if subject := GetSubject(ctx); subject.HasOrganization() {
		return *subject.OrganizationID
	}
	if id, ok := ctx.Value(OrganizationIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}

// GetSubject returns the subject stored by LoadSubject or RouteGate, or nil.
func GetSubject(ctx context.Context) *access.Subject {
	if s, ok := ctx.Value(SubjectKey).(*access.Subject); ok {
		return s
	}
	return nil
}
