package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/api"
	"github.com/hugh/rentwise/internal/auth"
	"github.com/hugh/rentwise/internal/database"
	"github.com/hugh/rentwise/internal/lifecycle"
	"github.com/hugh/rentwise/internal/notify"
	"github.com/hugh/rentwise/internal/web"
	"github.com/hugh/rentwise/pkg/config"
	"github.com/hugh/rentwise/pkg/queue"
	"github.com/hugh/rentwise/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting rentwise server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
		"lookup_failure_policy", cfg.Access.LookupFailurePolicy,
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis carries the job queue and subscription notifications. Access
	// decisions never depend on it, so the server runs without it.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, running jobs inline", "error", err)
		_ = redisClient.Close()
		redisClient = nil
	}

	var asynqClient *asynq.Client
	var publisher notify.Publisher = notify.NewLogPublisher(logger)
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		publisher = notify.NewRedisPublisher(redisClient, cfg.Access.NotifyChannel)
	}

	policy, err := access.ParseLookupFailurePolicy(cfg.Access.LookupFailurePolicy)
	if err != nil {
		logger.Error("invalid access configuration", "error", err)
		os.Exit(1)
	}

	store := access.NewGormStore(db)
	engine := access.NewEngine(store, policy, logger)
	syncer := access.NewSynchronizer(store, cfg.Access.SyncConcurrency, logger)
	sweeper := lifecycle.NewSweeper(lifecycle.NewGormStore(db), publisher, lifecycle.Options{
		Grace:       cfg.Access.GracePeriod(),
		Concurrency: cfg.Access.SweepConcurrency,
	}, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	pages, err := web.LoadTemplates()
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	staticFS, err := web.GetStaticFS()
	if err != nil {
		logger.Error("failed to get static fs", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Engine:         engine,
		Synchronizer:   syncer,
		Sweeper:        sweeper,
		Pages:          pages,
		StaticFS:       staticFS,
		AsynqClient:    asynqClient,
		AllowedOrigins: cfg.Server.Origins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		CookieTTLHours: cfg.JWT.ExpiryHours,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
