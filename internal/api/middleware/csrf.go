package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sync"
	"time"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfTokenExpiry = 24 * time.Hour
)

type csrfToken struct {
	value     string
	expiresAt time.Time
}

// CSRFStore keeps one token per cookie session in memory.
type CSRFStore struct {
	tokens map[string]csrfToken
	mu     sync.Mutex
	now    func() time.Time
}

func NewCSRFStore() *CSRFStore {
	return &CSRFStore{
		tokens: make(map[string]csrfToken),
		now:    time.Now,
	}
}

// sweepLocked drops expired tokens. s.mu must be held.
func (s *CSRFStore) sweepLocked() {
	now := s.now()
	for session, tok := range s.tokens {
		if now.After(tok.expiresAt) {
			delete(s.tokens, session)
		}
	}
}

// GetOrCreate returns the live token for session, minting one if needed.
func (s *CSRFStore) GetOrCreate(session string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.tokens[session]; ok && s.now().Before(tok.expiresAt) {
		return tok.value, nil
	}

	s.sweepLocked()

	buf := make([]byte, csrfTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := base64.URLEncoding.EncodeToString(buf)
	s.tokens[session] = csrfToken{value: value, expiresAt: s.now().Add(csrfTokenExpiry)}
	return value, nil
}

func (s *CSRFStore) Validate(session, provided string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[session]
	if !ok || s.now().After(tok.expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tok.value), []byte(provided)) == 1
}

// CSRF protects state-changing requests authenticated only by the "token"
// cookie. Requests carrying the token in a header are not exposed to CSRF and
// pass through.
func CSRF(store *CSRFStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := cookieSession(r)

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				if session != "" {
					ensureCSRFCookie(w, r, store, session)
				}
				next.ServeHTTP(w, r)
				return
			}

			if session == "" || r.Header.Get("Authorization") != "" || r.Header.Get("X-Auth-Token") != "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(csrfHeaderName)
			if provided == "" {
				http.Error(w, "CSRF token missing", http.StatusForbidden)
				return
			}
			if !store.Validate(session, provided) {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, store *CSRFStore, session string) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	token, err := store.GetOrCreate(session)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // read by the shell's fetch wrapper
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenExpiry.Seconds()),
	})
}

// cookieSession keys the CSRF token on the tail of the session cookie. JWT
// headers are identical across users, the signature is not.
func cookieSession(r *http.Request) string {
	cookie, err := r.Cookie("token")
	if err != nil || cookie.Value == "" {
		return ""
	}
	if n := len(cookie.Value); n > 16 {
		return cookie.Value[n-16:]
	}
	return cookie.Value
}
