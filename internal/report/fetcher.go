package report

import (
	"context"
	"time"

	"github.com/ads-sync/internal/adapter"
	"github.com/ads-sync/internal/config"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/logging"
	"github.com/ads-sync/internal/metrics"
	"github.com/ads-sync/internal/retry"
	"github.com/ads-sync/internal/types"
)

// Config controls how a window is fetched
type Config struct {
	Scope             types.ReportScope
	MaxDaysPerRequest int
	PollTimeout       time.Duration
	RequestPause      time.Duration
	SyntheticFallback bool
}

// ConfigFrom builds a fetcher config from the report settings
func ConfigFrom(cfg config.ReportConfig) Config {
	return Config{
		Scope:             types.ReportScopeCampaign,
		MaxDaysPerRequest: cfg.MaxDaysPerRequest,
		PollTimeout:       cfg.PollTimeout,
		RequestPause:      cfg.RequestPause,
		SyntheticFallback: cfg.SyntheticFallback,
	}
}

// Result is the outcome of fetching one window
type Result struct {
	Rows      []adapter.ReportRow
	Ranges    []DateRange
	Failed    []DateRange
	Synthetic bool
}

// Fetcher pulls a window as a series of sub-range reports
type Fetcher struct {
	cfg       Config
	synthetic *SyntheticGenerator
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher. synthetic may be nil, which disables the fallback.
func NewFetcher(cfg Config, synthetic *SyntheticGenerator) *Fetcher {
	if cfg.MaxDaysPerRequest < 1 {
		cfg.MaxDaysPerRequest = 31
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = types.ReportScopeCampaign
	}
	return &Fetcher{cfg: cfg, synthetic: synthetic, sleep: retry.SleepContext}
}

// SetSleep replaces the pause between sub-range requests. Used by tests.
func (f *Fetcher) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	f.sleep = sleep
}

// Fetch requests, polls and downloads every sub-range of window. A failed or
// timed-out sub-range is logged and skipped. Context cancellation, auth and
// rate-limit failures abort the fetch.
func (f *Fetcher) Fetch(ctx context.Context, client adapter.AdsClient, accountID string, window DateRange) (*Result, error) {
	logger := logging.FromContext(ctx).ForAccount(accountID)
	result := &Result{Ranges: SplitDateRange(window, f.cfg.MaxDaysPerRequest)}

	for i, r := range result.Ranges {
		if i > 0 && f.cfg.RequestPause > 0 {
			if err := f.sleep(ctx, f.cfg.RequestPause); err != nil {
				return result, err
			}
		}

		rows, err := f.fetchRange(ctx, client, r)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if apperrors.IsAuth(err) || apperrors.IsRateLimit(err) {
				return result, err
			}
			result.Failed = append(result.Failed, r)
			metrics.ReportSubRanges.WithLabelValues("failed").Inc()
			logger.WithError(err).WithField("range", r.String()).Warn("Report sub-range failed, skipping")
			continue
		}
		metrics.ReportSubRanges.WithLabelValues("ok").Inc()
		logger.WithFields(map[string]interface{}{
			"range": r.String(),
			"rows":  len(rows),
		}).Debug("Report sub-range downloaded")
		result.Rows = append(result.Rows, rows...)
	}

	allFailed := len(result.Ranges) > 0 && len(result.Failed) == len(result.Ranges)
	if allFailed && f.cfg.SyntheticFallback && f.synthetic != nil {
		rows, err := f.synthetic.Generate(ctx, accountID, window)
		if err != nil {
			logger.WithError(err).Error("Synthetic fallback failed")
			return result, nil
		}
		metrics.ReportSubRanges.WithLabelValues("synthetic").Add(float64(len(result.Failed)))
		result.Rows = rows
		result.Synthetic = true
	}
	return result, nil
}

func (f *Fetcher) fetchRange(ctx context.Context, client adapter.AdsClient, r DateRange) ([]adapter.ReportRow, error) {
	id, err := client.RequestReport(ctx, f.cfg.Scope, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return client.PollAndDownloadReport(ctx, id, f.cfg.PollTimeout)
}
