package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api/handlers"
	"github.com/hugh/rentwise/internal/api/middleware"
	"github.com/hugh/rentwise/internal/auth"
	"github.com/hugh/rentwise/internal/lifecycle"
	"github.com/hugh/rentwise/internal/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	Engine         *access.Engine
	Synchronizer   *access.Synchronizer
	Sweeper        *lifecycle.Sweeper
	Pages          web.Pages
	StaticFS       fs.FS
	AsynqClient    *asynq.Client // nil runs background jobs inline
	AllowedOrigins []string      // CORS allowed origins
	RateLimitReqs  int           // Rate limit requests per window
	RateLimitSecs  int           // Rate limit window in seconds
	CookieTTLHours int
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics())

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow localhost in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Lookups are memoized per request from here on.
	r.Use(middleware.RequestCache())

	// A nil *asynq.Client must not become a non-nil interface.
	var queue handlers.TaskEnqueuer
	if cfg.AsynqClient != nil {
		queue = cfg.AsynqClient
	}

	csrfStore := middleware.NewCSRFStore()

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cookieTTL(cfg))
	accessHandler := handlers.NewAccessHandler(cfg.Engine, cfg.AuthService, cfg.Logger)
	orgHandler := handlers.NewOrganizationHandler(cfg.DB, cfg.Logger)
	profileHandler := handlers.NewProfileHandler(cfg.DB, cfg.Engine, cfg.Synchronizer, queue, cfg.Logger)
	platformHandler := handlers.NewPlatformHandler(cfg.DB, cfg.Synchronizer, cfg.Sweeper, queue, cfg.Logger)
	pageHandler := handlers.NewPageHandler(cfg.Pages, cfg.Engine, cfg.AuthService, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			r.Use(middleware.LoadSubject(cfg.Engine))
			if cfg.RateLimitReqs > 0 {
				r.Use(middleware.RateLimitBySubject(cfg.RateLimitReqs, cfg.RateLimitSecs))
			}
			r.Use(middleware.CSRF(csrfStore))

			r.Get("/me", accessHandler.Me)

			r.Route("/access", func(r chi.Router) {
				r.Get("/route", accessHandler.Route)
				r.Get("/can", accessHandler.Can)
				r.Get("/subscription", accessHandler.Subscription)
				r.Get("/affordances", accessHandler.Affordances)
				r.Get("/affordances/{key}", accessHandler.Affordance)
			})

			r.With(middleware.RequirePermission(cfg.Engine, access.ObjectOrganization, access.ActionEdit)).
				Post("/organization/setup", orgHandler.Setup)

			r.Route("/profiles", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(cfg.Engine, access.ObjectProfile, access.ActionRead))
					r.Get("/", profileHandler.List)
					r.Get("/{id}/permissions", profileHandler.GetPermissions)
					r.Get("/{id}/overrides", profileHandler.GetOverrides)
				})
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(cfg.Engine, access.ObjectProfile, access.ActionEdit))
					r.Put("/{id}/permissions", profileHandler.PutPermissions)
					r.Put("/{id}/buttons/{buttonID}", profileHandler.SetButtonOverride)
					r.Put("/{id}/navigation/{itemID}", profileHandler.SetNavigationOverride)
					r.Post("/{id}/sync", profileHandler.Sync)
				})
				r.With(middleware.RequirePermission(cfg.Engine, access.ObjectProfile, access.ActionDelete)).
					Delete("/{id}", profileHandler.Delete)
			})

			r.Route("/platform", func(r chi.Router) {
				r.Use(middleware.RequireSuperAdmin(cfg.Engine))

				r.Get("/plans", platformHandler.ListPlans)
				r.Post("/plans", platformHandler.CreatePlan)
				r.Put("/plans/{id}", platformHandler.UpdatePlan)

				r.Get("/buttons", platformHandler.ListButtons)
				r.Post("/buttons", platformHandler.CreateButton)
				r.Put("/buttons/{id}", platformHandler.UpdateButton)
				r.Delete("/buttons/{id}", platformHandler.DeleteButton)

				r.Get("/navigation", platformHandler.ListNavigationItems)
				r.Post("/navigation", platformHandler.CreateNavigationItem)
				r.Put("/navigation/{id}", platformHandler.UpdateNavigationItem)
				r.Delete("/navigation/{id}", platformHandler.DeleteNavigationItem)

				r.Put("/subscriptions/{id}/status", platformHandler.SetSubscriptionStatus)
				r.Post("/sync", platformHandler.SyncAll)
				r.Post("/sweep", platformHandler.Sweep)
			})
		})
	})

	// Static files
	if cfg.StaticFS != nil {
		fileServer := http.FileServer(http.FS(cfg.StaticFS))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	// Every other path is a page navigation and goes through the route gate.
	r.With(middleware.RouteGate(cfg.Engine, cfg.JWTService)).Get("/*", pageHandler.App)

	return &Router{r}
}

func cookieTTL(cfg RouterConfig) time.Duration {
	return time.Duration(cfg.CookieTTLHours) * time.Hour
}
