package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/auth"
)

// RequestCache gives every request its own lookup cache so a page render
// resolves each user, organization and profile at most once.
func RequestCache() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(access.WithRequestCache(r.Context())))
		})
	}
}

// RouteGate guards page navigations. A missing or invalid token is not an
// error here: the gate itself decides where an anonymous visitor goes.
func RouteGate(engine *access.Engine, tokens auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token := tokenFromRequest(r); token != "" {
				if claims, err := tokens.Parse(token); err == nil {
					ctx = withClaims(ctx, claims)
				}
			}

			decision, subject := engine.GateNavigation(ctx, GetUserID(ctx), r.URL.Path)
			if !decision.Allowed {
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
				return
			}

			if subject != nil {
				ctx = context.WithValue(ctx, SubjectKey, subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission allows the request only when the subject may perform
// action on objectType.
func RequirePermission(engine *access.Engine, objectType access.ObjectType, action access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := engine.Authorize(r.Context(), GetSubject(r.Context()), objectType, action)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, access.ErrUnauthenticated):
				handleUnauthorized(w, r)
			case errors.Is(err, access.ErrForbidden):
				http.Error(w, "Forbidden", http.StatusForbidden)
			default:
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}

// RequireSuperAdmin restricts platform routes to super-admins.
func RequireSuperAdmin(engine *access.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := GetSubject(r.Context())
			if !subject.Authenticated() {
				handleUnauthorized(w, r)
				return
			}
			if !engine.Classifier().Classify(r.Context(), subject.UserID).IsSuperAdmin {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
