// Package ratelimit coordinates advertising platform request budgets across processes.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 240              // Request units per window per profile
	DefaultReservedBudget = 60               // Reserved for manually triggered syncs
	DefaultWindowSize     = time.Minute      // Fixed window aligned to the minute
	DefaultKeyTTL         = 90 * time.Second // Window + buffer
)

// Redis key prefixes for budget tracking.
const (
	KeyPrefixTotal    = "ads:budget:total:"
	KeyPrefixReserved = "ads:budget:reserved:"
	KeyPrefixShared   = "ads:budget:shared:"
)

// Priority levels for budget allocation.
type Priority int

const (
	// PriorityHigh is for manually triggered syncs (uses the reserved pool).
	PriorityHigh Priority = iota
	// PriorityLow is for scheduled syncs (uses the shared pool).
	PriorityLow
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

type priorityKey struct{}

// WithPriority marks platform calls made under ctx with a budget priority
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFrom returns the priority carried by ctx, PriorityLow when unset
func PriorityFrom(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return PriorityLow
}

// RequestBudget shares a per-profile request budget between every process
// calling the platform. Each profile gets its own fixed window in Redis,
// split into a reserved pool for manual syncs and a shared pool for scheduled ones.
type RequestBudget struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// RequestBudgetConfig holds configuration for the budget.
type RequestBudgetConfig struct {
	// Redis is required.
	Redis redis.Cmdable

	// TotalBudget is the per-window budget. Default: 240.
	TotalBudget int

	// ReservedBudget is the part of TotalBudget reserved for PriorityHigh. Default: 60.
	ReservedBudget int

	// WindowSize is the window duration. Default: 1m.
	WindowSize time.Duration

	// KeyTTL must be at least WindowSize. Default: 90s.
	KeyTTL time.Duration
}

// Usage is a snapshot of one profile's current window.
type Usage struct {
	TotalUsed      int
	ReservedUsed   int
	SharedUsed     int
	TotalBudget    int
	ReservedBudget int
	SharedBudget   int
	WindowStart    time.Time
}

// Validate checks if the configuration is valid.
func (c *RequestBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	total := c.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved := c.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
	}
	if reserved > total {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reserved, total)
	}

	return nil
}

// NewRequestBudget creates a budget with the given configuration.
func NewRequestBudget(cfg *RequestBudgetConfig) (*RequestBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	total := cfg.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved := cfg.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
	}
	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}

	return &RequestBudget{
		redis:          cfg.Redis,
		totalBudget:    total,
		reservedBudget: reserved,
		sharedBudget:   total - reserved,
		windowSize:     windowSize,
		keyTTL:         keyTTL,
		now:            time.Now,
	}, nil
}

var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local units = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + units > totalBudget then
		return {0, totalUsed, poolUsed}
	end
	if poolUsed + units > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, units)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, units)
	redis.call('EXPIRE', poolKey, ttl)

	return {1, totalUsed + units, poolUsed + units}
`)

func (b *RequestBudget) windowTimestamp() int64 {
	return b.now().Truncate(b.windowSize).UnixMilli()
}

func (b *RequestBudget) keys(profile string, windowTS int64) (totalKey, reservedKey, sharedKey string) {
	suffix := profile + ":" + strconv.FormatInt(windowTS, 10)
	return KeyPrefixTotal + suffix, KeyPrefixReserved + suffix, KeyPrefixShared + suffix
}

// TryConsume attempts to take units from the profile's pool for the given priority.
// When denied it returns the time until the next window.
// Redis failures deny the request.
func (b *RequestBudget) TryConsume(ctx context.Context, profile string, units int, priority Priority) (bool, time.Duration) {
	if units <= 0 {
		return true, 0
	}

	windowTS := b.windowTimestamp()
	totalKey, reservedKey, sharedKey := b.keys(profile, windowTS)

	poolKey, poolBudget := sharedKey, b.sharedBudget
	if priority == PriorityHigh {
		poolKey, poolBudget = reservedKey, b.reservedBudget
	}

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{totalKey, poolKey},
		units, b.totalBudget, poolBudget, ttlSeconds).Int64Slice()
	if err != nil || len(result) == 0 || result[0] != 1 {
		return false, b.waitTime(windowTS)
	}

	return true, 0
}

func (b *RequestBudget) waitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(b.windowSize)
	wait := windowEnd.Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// GetUsage returns the current window's consumption for a profile.
func (b *RequestBudget) GetUsage(ctx context.Context, profile string) (*Usage, error) {
	windowTS := b.windowTimestamp()
	totalKey, reservedKey, sharedKey := b.keys(profile, windowTS)

	pipe := b.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read budget usage: %w", err)
	}

	return &Usage{
		TotalUsed:      parseIntOrZero(totalCmd),
		ReservedUsed:   parseIntOrZero(reservedCmd),
		SharedUsed:     parseIntOrZero(sharedCmd),
		TotalBudget:    b.totalBudget,
		ReservedBudget: b.reservedBudget,
		SharedBudget:   b.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS),
	}, nil
}

func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}

// Utilization returns the profile's total utilization as a percentage (0-100).
func (b *RequestBudget) Utilization(ctx context.Context, profile string) (float64, error) {
	usage, err := b.GetUsage(ctx, profile)
	if err != nil {
		return 0, err
	}
	if b.totalBudget == 0 {
		return 100, nil
	}
	return float64(usage.TotalUsed) * 100 / float64(b.totalBudget), nil
}
