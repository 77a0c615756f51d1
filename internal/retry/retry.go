package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/logging"
)

// RetryConfig configures retry behavior.
// The n-th retry (0-based) waits BaseDelay * Multiplier^n, capped at MaxDelay.
type RetryConfig struct {
	MaxRetries  int           // Retries after the first attempt
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Cap on a single delay, 0 for none
	Multiplier  float64       // Growth factor between retries
	HonorHint   bool          // Wait at least a server-provided Retry-After
	ShouldRetry func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
	OnRetry     func(retry int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the queue's rate-limit backoff: 1s, 2s, 4s then give up
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		ShouldRetry: apperrors.IsRateLimit,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int             `json:"attempts"`
	Retries       int             `json:"retries"`
	Delays        []time.Duration `json:"delays,omitempty"`
	Success       bool            `json:"success"`
	TotalDuration time.Duration   `json:"totalDuration"`
	LastError     error           `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried. attempt starts at 1.
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn, retrying errors accepted by ShouldRetry
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()
	sleep := config.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	result := &RetryResult{}

	for retry := 0; ; retry++ {
		result.Attempts = retry + 1

		err := fn(ctx, result.Attempts)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if retry > 0 {
				logger.WithFields(map[string]interface{}{
					"attempts":      result.Attempts,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			break
		}
		if retry >= config.MaxRetries {
			logger.WithFields(map[string]interface{}{
				"attempts": result.Attempts,
				"error":    err.Error(),
			}).Warn("Operation failed after max retry attempts")
			break
		}

		delay := Delay(config, retry)
		if config.HonorHint {
			if hint := retryAfterHint(err); hint > delay {
				delay = hint
			}
		}

		logger.WithFields(map[string]interface{}{
			"retry":      retry + 1,
			"maxRetries": config.MaxRetries,
			"delay":      delay.String(),
			"error":      err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")

		if config.OnRetry != nil {
			config.OnRetry(retry, delay, err)
		}
		result.Delays = append(result.Delays, delay)
		result.Retries++

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			logger.WithError(sleepErr).Warn("Retry cancelled during backoff")
			result.LastError = sleepErr
			break
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// Delay returns the wait before the given 0-based retry
func Delay(config *RetryConfig, retry int) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(config.BaseDelay) * math.Pow(multiplier, float64(retry))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

func retryAfterHint(err error) time.Duration {
	if catErr := apperrors.Categorize(err); catErr != nil {
		return catErr.RetryAfter()
	}
	return 0
}

// SleepContext waits for d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithRetry retries transient platform failures a few times with short delays
func WithRetry(ctx context.Context, fn RetryFunc) error {
	config := &RetryConfig{
		MaxRetries:  2,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		ShouldRetry: func(err error) bool { return apperrors.IsRetryable(err) && !apperrors.IsRateLimit(err) },
	}
	result := WithExponentialBackoff(ctx, config, fn)

	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}

	return nil
}
