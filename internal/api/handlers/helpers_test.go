package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/testutil"
	"gorm.io/gorm"
)

func newEngine(db *gorm.DB) *access.Engine {
	return access.NewEngine(access.NewGormStore(db), access.LookupFailureDeny, testutil.Logger())
}

func newSyncer(db *gorm.DB) *access.Synchronizer {
	return access.NewSynchronizer(access.NewGormStore(db), 2, testutil.Logger())
}

// authedRouter mirrors the authenticated API group of the real router.
func authedRouter(tc *testutil.TestSetup, engine *access.Engine) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestCache())
	r.Use(middleware.Auth(tc.JWTService))
	r.Use(middleware.LoadSubject(engine))
	return r
}

func serve(t *testing.T, h http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, testutil.AuthenticatedRequest(t, method, path, body, token))
	return rr
}
