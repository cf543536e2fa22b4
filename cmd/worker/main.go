package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/rentwise/internal/access"
	"github.com/hugh/rentwise/internal/database"
	"github.com/hugh/rentwise/internal/lifecycle"
	"github.com/hugh/rentwise/internal/notify"
	"github.com/hugh/rentwise/internal/tasks"
	"github.com/hugh/rentwise/pkg/config"
	"github.com/hugh/rentwise/pkg/queue"
	"github.com/hugh/rentwise/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
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

	logger.Info("starting rentwise worker", "sweep_cron", cfg.Access.SweepCron)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})

	store := access.NewGormStore(db)
	syncer := access.NewSynchronizer(store, cfg.Access.SyncConcurrency, logger)
	sweeper := lifecycle.NewSweeper(
		lifecycle.NewGormStore(db),
		notify.NewRedisPublisher(redisClient, cfg.Access.NotifyChannel),
		lifecycle.Options{
			Grace:       cfg.Access.GracePeriod(),
			Concurrency: cfg.Access.SweepConcurrency,
		},
		logger,
	)

	handler := tasks.NewHandler(syncer, sweeper, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10, logger)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Access.SweepCron, tasks.NewSubscriptionSweepTask(),
		asynq.Queue(queue.QueueLow),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		logger.Error("failed to schedule subscription sweep", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Access.SweepCron, time.Now()); err == nil {
		logger.Info("subscription sweep scheduled", "entry_id", entryID, "next_run", next)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(mux)
	})
	g.Go(func() error {
		return scheduler.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		return nil
	})

	logger.Info("worker started, waiting for tasks...")
	if err := g.Wait(); err != nil {
		logger.Error("worker error", "error", err)
	}

	_ = redisClient.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
