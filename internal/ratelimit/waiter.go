package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Default waiter configuration values.
const (
	DefaultBaseDelay = 250 * time.Millisecond
	DefaultMaxDelay  = 15 * time.Second
	DefaultMaxWait   = 2 * time.Minute
)

// ErrMaxWaitExceeded is returned when budget does not free up in time.
var ErrMaxWaitExceeded = errors.New("maximum wait time exceeded waiting for request budget")

// ErrContextCancelled is returned when the context is cancelled while waiting for budget.
var ErrContextCancelled = errors.New("context cancelled while waiting for budget")

// Budget is the subset of RequestBudget the waiter needs.
type Budget interface {
	TryConsume(ctx context.Context, profile string, units int, priority Priority) (bool, time.Duration)
}

// Waiter blocks platform calls until the shared budget admits them,
// backing off baseDelay*2^fails between denied attempts.
type Waiter struct {
	budget           Budget
	costs            *CostTable
	baseDelay        time.Duration
	maxDelay         time.Duration
	maxWait          time.Duration
	mu               sync.Mutex
	consecutiveFails int
	throttled        int64
}

// WaiterConfig holds configuration for the waiter.
type WaiterConfig struct {
	Budget    Budget
	Costs     *CostTable
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxWait   time.Duration
}

// NewWaiter creates a waiter. A nil Costs uses the default table.
func NewWaiter(cfg *WaiterConfig) (*Waiter, error) {
	if cfg == nil || cfg.Budget == nil {
		return nil, errors.New("budget is required")
	}
	if cfg.BaseDelay < 0 || cfg.MaxDelay < 0 || cfg.MaxWait < 0 {
		return nil, errors.New("delays cannot be negative")
	}

	w := &Waiter{
		budget:    cfg.Budget,
		costs:     cfg.Costs,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		maxWait:   cfg.MaxWait,
	}
	if w.costs == nil {
		w.costs = NewCostTable(nil)
	}
	if w.baseDelay == 0 {
		w.baseDelay = DefaultBaseDelay
	}
	if w.maxDelay == 0 {
		w.maxDelay = DefaultMaxDelay
	}
	if w.maxWait == 0 {
		w.maxWait = DefaultMaxWait
	}
	return w, nil
}

// Wait blocks until the profile's budget admits one call to endpoint.
// The priority comes from ctx (see WithPriority).
func (w *Waiter) Wait(ctx context.Context, profile string, endpoint Endpoint) error {
	units := w.costs.Cost(endpoint)
	priority := PriorityFrom(ctx)
	deadline := time.Now().Add(w.maxWait)

	for {
		if ctx.Err() != nil {
			return ErrContextCancelled
		}

		allowed, suggested := w.budget.TryConsume(ctx, profile, units, priority)
		if allowed {
			w.recordSuccess()
			return nil
		}

		delay := w.recordFailure()
		if suggested > delay {
			delay = suggested
		}
		if time.Now().Add(delay).After(deadline) {
			return ErrMaxWaitExceeded
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrContextCancelled
		case <-timer.C:
		}
	}
}

func (w *Waiter) recordSuccess() {
	w.mu.Lock()
	w.consecutiveFails = 0
	w.mu.Unlock()
}

func (w *Waiter) recordFailure() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.consecutiveFails++
	w.throttled++

	delay := w.baseDelay
	for i := 1; i < w.consecutiveFails; i++ {
		delay *= 2
		if delay > w.maxDelay {
			return w.maxDelay
		}
	}
	return delay
}

// Throttled returns how many times a call had to wait for budget.
func (w *Waiter) Throttled() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.throttled
}
