package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, 60)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("10.0.0.1")
		require.True(t, allowed, "request %d", i)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, reset := rl.Allow("10.0.0.1")
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, reset.After(time.Now()))

	allowed, _, _ = rl.Allow("10.0.0.2")
	assert.True(t, allowed, "clients are limited independently")
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(5, 1)
	defer rl.Stop()

	rl.Allow("a")
	rl.evictIdle(time.Now().Add(time.Minute))

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.clients)
}

func TestRateLimit_Middleware(t *testing.T) {
	handler := RateLimit(1, 60)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitBySubject(t *testing.T) {
	handler := RateLimitBySubject(1, 60)(http.HandlerFunc(okHandler))

	serve := func(userID uuid.UUID) int {
		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		req.RemoteAddr = "192.0.2.9:4444"
		if userID != uuid.Nil {
			req = req.WithContext(context.WithValue(req.Context(), SubjectKey, &access.Subject{UserID: userID}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	first, second := uuid.New(), uuid.New()
	assert.Equal(t, http.StatusOK, serve(first))
	assert.Equal(t, http.StatusTooManyRequests, serve(first))
	assert.Equal(t, http.StatusOK, serve(second), "users behind one address are limited separately")

	assert.Equal(t, http.StatusOK, serve(uuid.Nil))
	assert.Equal(t, http.StatusTooManyRequests, serve(uuid.Nil), "anonymous callers fall back to the client IP")
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.10"}, "10.0.0.1:80", "203.0.113.10"},
		{"remote addr", nil, "198.51.100.4:1234", "198.51.100.4"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestCSRF(t *testing.T) {
	store := NewCSRFStore()
	handler := CSRF(store)(http.HandlerFunc(okHandler))
	sessionCookie := &http.Cookie{Name: "token", Value: "eyJhbGciOiJIUzI1NiJ9.payload.signature-abcdef"}

	t.Run("safe method issues cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/profiles", nil)
		req.AddCookie(sessionCookie)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, csrfCookieName, cookies[0].Name)
	})

	t.Run("cookie session without token is rejected", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/api/v1/profiles/x/permissions", nil)
		req.AddCookie(sessionCookie)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("cookie session with token passes", func(t *testing.T) {
		token, err := store.GetOrCreate(cookieSession(withCookie(sessionCookie)))
		require.NoError(t, err)

		req := httptest.NewRequest("PUT", "/api/v1/profiles/x/permissions", nil)
		req.AddCookie(sessionCookie)
		req.Header.Set(csrfHeaderName, token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bearer requests are exempt", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/organization/setup", nil, "some-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCSRFStore_Expiry(t *testing.T) {
	store := NewCSRFStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	token, err := store.GetOrCreate("session")
	require.NoError(t, err)
	assert.True(t, store.Validate("session", token))
	assert.False(t, store.Validate("session", "forged"))

	now = now.Add(csrfTokenExpiry + time.Second)
	assert.False(t, store.Validate("session", token))

	fresh, err := store.GetOrCreate("session")
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testutil.Logger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func withCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(c)
	return req
}
