package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/api/validation"
	"github.com/hugh/rentwise/internal/auth"
	"github.com/hugh/rentwise/internal/web"
)

// PageHandler renders the HTML shell. It runs behind the route gate, so it
// only ever sees navigations the gate allowed.
type PageHandler struct {
	pages       web.Pages
	engine      *access.Engine
	authService auth.Authenticator
	logger      *slog.Logger
}

func NewPageHandler(pages web.Pages, engine *access.Engine, authService auth.Authenticator, logger *slog.Logger) *PageHandler {
	return &PageHandler{pages: pages, engine: engine, authService: authService, logger: logger}
}

// Sidebar entries longer than this are cut.
const navLabelMax = 32

type navLink struct {
	Path    string
	Label   string
	Icon    string
	Enabled bool
}

type shellData struct {
	Path       string
	User       *userSummary
	OrgName    string
	Navigation []navLink
	Notice     string
}

type userSummary struct {
	Name  string
	Email string
}

func (h *PageHandler) App(w http.ResponseWriter, r *http.Request) {
	path := access.NormalizePath(r.URL.Path)
	routes := h.engine.Routes()

	switch path {
	case routes.SignIn:
		h.render(w, "sign-in.html", map[string]bool{"SignUp": false})
		return
	case routes.SignUp:
		h.render(w, "sign-in.html", map[string]bool{"SignUp": true})
		return
	}

	data := shellData{Path: path}
	subject := middleware.GetSubject(r.Context())
	if !subject.Authenticated() {
		h.render(w, "app.html", data)
		return
	}

	if user, err := h.authService.GetUserByID(r.Context(), subject.UserID); err == nil {
		data.User = &userSummary{Name: user.Name, Email: user.Email}
		if user.Organization != nil {
			data.OrgName = user.Organization.Name
		}
	}

	affordances, err := h.engine.Affordances(r.Context(), subject)
	if err != nil {
		h.logger.Warn("navigation unavailable", "user_id", subject.UserID, "error", err)
	}
	for _, a := range affordances {
		if a.Kind == access.KindNavigationItem && a.Visible {
			data.Navigation = append(data.Navigation, navLink{Path: a.Path, Label: validation.TruncateString(a.Label, navLabelMax), Icon: a.Icon, Enabled: a.Enabled})
		}
	}

	switch path {
	case routes.SubscriptionInactive:
		data.Notice = "Your agency's subscription is inactive. Contact your administrator."
	case routes.SubscriptionSetup:
		data.Notice = "Choose a plan to reactivate your agency."
	}

	h.render(w, "app.html", data)
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data interface{}) {
	if h.pages == nil {
		http.Error(w, "Templates not loaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.Render(w, name, data); err != nil {
		h.logger.Error("template render failed", "page", name, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
