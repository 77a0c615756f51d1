// Package main provides a one-off performance backfill for a single ad account.
// It runs a performance-only sync over the requested number of days and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/circuitbreaker"
	"github.com/ads-sync/internal/config"
	"github.com/ads-sync/internal/logging"
	"github.com/ads-sync/internal/ratelimit"
	"github.com/ads-sync/internal/report"
	"github.com/ads-sync/internal/service"
	"github.com/ads-sync/internal/storage"
)

func main() {
	var (
		accountID = flag.String("account", "", "Ad account ID to backfill (required)")
		days      = flag.Int("days", 0, "Days of performance to pull, ending yesterday (default: first-sync window)")
	)
	flag.Parse()

	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "usage: backfill -account <id> [-days N]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *days == 0 {
		*days = cfg.Report.FirstSyncDays
	}
	if *days < 1 {
		log.Fatalf("Invalid -days %d", *days)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("component", "backfill")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

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

	// Redis carries the account lock and the request budget shared with running workers
	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	budget, err := ratelimit.NewRequestBudget(&ratelimit.RequestBudgetConfig{
		Redis:          redis.Client(),
		TotalBudget:    cfg.Platform.BudgetPerMinute,
		ReservedBudget: max(cfg.Platform.BudgetPerMinute/4, 1),
		WindowSize:     time.Minute,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create request budget")
	}
	waiter, err := ratelimit.NewWaiter(&ratelimit.WaiterConfig{Budget: budget})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create budget waiter")
	}

	clients := adapter.NewHTTPClientFactory(adapter.HTTPClientConfig{
		BaseURL:           cfg.Platform.BaseURL,
		ClientID:          cfg.Platform.ClientID,
		Timeout:           cfg.Platform.RequestTimeout,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		PollInterval:      cfg.Report.PollInterval,
		Waiter:            waiter,
		Breakers: circuitbreaker.NewManager(circuitbreaker.Config{
			MaxConsecutiveFailures: cfg.Platform.BreakerThreshold,
			Cooldown:               cfg.Platform.BreakerCooldown,
			IsFailure:              adapter.CountsAsOutage,
		}),
	})

	campaignRepo := storage.NewCampaignRepository(postgres)
	orchestrator := service.NewOrchestrator(service.Dependencies{
		Clients:     clients,
		Accounts:    storage.NewAccountRepository(postgres),
		SyncLogs:    storage.NewSyncLogRepository(postgres),
		Schedules:   storage.NewScheduleRepository(postgres),
		Locker:      redis,
		Campaigns:   campaignRepo,
		Audit:       storage.NewAuditRepository(postgres),
		Performance: storage.NewPerformanceRepository(clickhouse),
		Fetcher:     report.NewFetcher(report.ConfigFrom(cfg.Report), report.NewSyntheticGenerator(campaignRepo)),
		Report:      cfg.Report,
	})

	logger.WithFields(map[string]interface{}{
		"accountId": *accountID,
		"days":      *days,
	}).Info("Starting performance backfill")

	result, err := orchestrator.SyncPerformanceOnly(ctx, *accountID, *days)
	if err != nil {
		logger.WithError(err).Fatal("Backfill failed")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
