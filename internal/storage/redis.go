package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ads-sync/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrAccountLocked is returned when another process is syncing the account
var ErrAccountLocked = errors.New("account sync already in progress")

const accountLockPrefix = "ads:lock:account:"

// RedisCache wraps the Redis client shared by the request budget and account locks
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// AccountLock is a held per-account lock
type AccountLock struct {
	key   string
	token string
}

var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// LockAccount takes the cross-process sync lock for an account. The lock
// expires after ttl so a crashed worker cannot hold it forever.
func (r *RedisCache) LockAccount(ctx context.Context, accountID string, ttl time.Duration) (*AccountLock, error) {
	lock := &AccountLock{key: accountLockPrefix + accountID, token: uuid.NewString()}
	ok, err := r.client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	if !ok {
		return nil, ErrAccountLocked
	}
	return lock, nil
}

// UnlockAccount releases a lock if it is still held by the caller
func (r *RedisCache) UnlockAccount(ctx context.Context, lock *AccountLock) error {
	if lock == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{lock.key}, lock.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to unlock %s: %w", lock.key, err)
	}
	return nil
}
