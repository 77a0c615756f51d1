// Package main provides the sync engine entry point: tiered scheduler, work queue and HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/api"
	"github.com/ads-sync/internal/circuitbreaker"
	"github.com/ads-sync/internal/config"
	"github.com/ads-sync/internal/logging"
	"github.com/ads-sync/internal/ratelimit"
	"github.com/ads-sync/internal/report"
	"github.com/ads-sync/internal/service"
	"github.com/ads-sync/internal/storage"
	"github.com/ads-sync/internal/worker"
)

func main() {
	fmt.Println("Ads Sync Worker")
	log.Println("Worker starting...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx := logging.WithLogger(context.Background(), logger)

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Database.Postgres.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("Postgres migrations failed")
	}
	applied, err := storage.RunClickHouseMigrations(ctx, clickhouse, cfg.Database.ClickHouse.MigrationsPath)
	if err != nil {
		logger.WithError(err).Fatal("ClickHouse migrations failed")
	}
	logger.WithField("applied", len(applied)).Info("Migrations up to date")

	// Initialize repositories
	accountRepo := storage.NewAccountRepository(postgres)
	campaignRepo := storage.NewCampaignRepository(postgres)
	adGroupRepo := storage.NewAdGroupRepository(postgres)
	keywordRepo := storage.NewKeywordRepository(postgres)
	targetRepo := storage.NewProductTargetRepository(postgres)
	scheduleRepo := storage.NewScheduleRepository(postgres)
	syncLogRepo := storage.NewSyncLogRepository(postgres)
	auditRepo := storage.NewAuditRepository(postgres)
	performanceRepo := storage.NewPerformanceRepository(clickhouse)

	// Jobs still marked running were owned by a process that died
	if n, err := syncLogRepo.FailAbandoned(ctx, time.Now()); err != nil {
		logger.WithError(err).Warn("Failed to close abandoned sync logs")
	} else if n > 0 {
		logger.WithField("count", n).Warn("Marked abandoned sync logs as failed")
	}

	clients, err := newClientFactory(cfg, redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize platform client")
	}

	fetcher := report.NewFetcher(report.ConfigFrom(cfg.Report), report.NewSyntheticGenerator(campaignRepo))
	orchestrator := service.NewOrchestrator(service.Dependencies{
		Clients:        clients,
		Accounts:       accountRepo,
		SyncLogs:       syncLogRepo,
		Schedules:      scheduleRepo,
		Locker:         redis,
		Campaigns:      campaignRepo,
		AdGroups:       adGroupRepo,
		Keywords:       keywordRepo,
		ProductTargets: targetRepo,
		Audit:          auditRepo,
		Performance:    performanceRepo,
		Fetcher:        fetcher,
		Report:         cfg.Report,
	})

	queue := worker.NewQueue(orchestrator, worker.QueueConfigFrom(cfg.Queue))

	var scheduler *worker.Scheduler
	var schedulerStatus api.SchedulerStatusProvider
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewScheduler(scheduleRepo, queue, worker.SchedulerConfigFrom(cfg.Scheduler))
		if err := scheduler.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
		schedulerStatus = scheduler
		logger.Info("Scheduler started")
	} else {
		logger.Warn("Scheduler disabled; only manual syncs will run")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ManualSyncRPS:   cfg.Server.ManualSyncRPS,
		ManualSyncBurst: cfg.Server.ManualSyncBurst,
	}
	server := api.NewServer(serverConfig, api.Dependencies{
		Queue:       queue,
		Scheduler:   schedulerStatus,
		Accounts:    accountRepo,
		SyncLogs:    syncLogRepo,
		Conflicts:   auditRepo,
		Performance: performanceRepo,
		Breakers:    clients,
	})

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Worker started successfully")

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received, stopping scheduler and queue...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server forced to shutdown")
	}
	// Close drops pending items and waits for the one in flight
	if err := queue.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("Queue did not drain before the shutdown deadline")
	}

	status := queue.Status()
	logger.WithFields(map[string]interface{}{
		"processed": status.Processed,
		"failed":    status.Failed,
		"retried":   status.Retried,
	}).Info("Worker stopped. Goodbye!")
}

// newClientFactory builds the platform client stack: per-process pacing,
// the Redis request budget shared with other processes, and per-profile breakers
func newClientFactory(cfg *config.Config, redis *storage.RedisCache) (*adapter.HTTPClientFactory, error) {
	reserved := cfg.Platform.BudgetPerMinute / 4
	if reserved < 1 {
		reserved = 1
	}
	budget, err := ratelimit.NewRequestBudget(&ratelimit.RequestBudgetConfig{
		Redis:          redis.Client(),
		TotalBudget:    cfg.Platform.BudgetPerMinute,
		ReservedBudget: reserved,
		WindowSize:     time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("request budget: %w", err)
	}

	waiter, err := ratelimit.NewWaiter(&ratelimit.WaiterConfig{Budget: budget})
	if err != nil {
		return nil, fmt.Errorf("budget waiter: %w", err)
	}

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxConsecutiveFailures: cfg.Platform.BreakerThreshold,
		Cooldown:               cfg.Platform.BreakerCooldown,
		IsFailure:              adapter.CountsAsOutage,
	})

	return adapter.NewHTTPClientFactory(adapter.HTTPClientConfig{
		BaseURL:           cfg.Platform.BaseURL,
		ClientID:          cfg.Platform.ClientID,
		Timeout:           cfg.Platform.RequestTimeout,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		PollInterval:      cfg.Report.PollInterval,
		Waiter:            waiter,
		Breakers:          breakers,
	}), nil
}
