package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

// RedisLimiter counts requests per key in fixed Redis windows
type RedisLimiter struct {
	client *redis.Client
	logger logger.Logger
}

// NewRedisLimiter creates a limiter over an established client
func NewRedisLimiter(client *redis.Client, log logger.Logger) *RedisLimiter {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisLimiter{client: client, logger: log}
}

var _ ports.RateLimiter = (*RedisLimiter)(nil)

func blockKey(key string) string {
	return fmt.Sprintf("blocked:%s", key)
}

// CheckLimit reports whether key is still under limit
func (l *RedisLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	current, err := l.GetAttempts(ctx, key)
	if err != nil {
		return false, err
	}

	underLimit := current < limit
	l.logger.Debug(ctx, "Rate limit check", map[string]interface{}{
		"key":         key,
		"current":     current,
		"limit":       limit,
		"under_limit": underLimit,
	})
	return underLimit, nil
}

// Increment bumps the counter and refreshes the window
func (l *RedisLimiter) Increment(ctx context.Context, key string, window time.Duration) error {
	pipeline := l.client.Pipeline()
	incr := pipeline.Incr(ctx, key)
	pipeline.Expire(ctx, key, window)

	if _, err := pipeline.Exec(ctx); err != nil {
		l.logger.Error(ctx, "Failed to increment rate limit counter", err, map[string]interface{}{"key": key})
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}

	l.logger.Debug(ctx, "Rate limit incremented", map[string]interface{}{
		"key":    key,
		"count":  incr.Val(),
		"window": window.String(),
	})
	return nil
}

// Block marks key as blocked for duration
func (l *RedisLimiter) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	data := map[string]interface{}{
		"reason":         reason,
		"blocked_at":     time.Now().Unix(),
		"duration":       duration.Seconds(),
		"correlation_id": logger.CorrelationIDFromContext(ctx),
	}

	pipeline := l.client.Pipeline()
	pipeline.HSet(ctx, blockKey(key), data)
	pipeline.Expire(ctx, blockKey(key), duration)

	if _, err := pipeline.Exec(ctx); err != nil {
		l.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
		return fmt.Errorf("failed to block key: %w", err)
	}

	logger.LogSecurityEvent(ctx, l.logger, "rate_limit_block", "medium", map[string]interface{}{
		"key":      key,
		"duration": duration.String(),
		"reason":   reason,
	})
	return nil
}

// IsBlocked reports whether key is currently blocked
func (l *RedisLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := l.client.Exists(ctx, blockKey(key)).Result()
	if err != nil {
		l.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	return exists > 0, nil
}

// GetAttempts returns the counter of key, 0 when it does not exist
func (l *RedisLimiter) GetAttempts(ctx context.Context, key string) (int, error) {
	count, err := l.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		l.logger.Error(ctx, "Failed to get attempts count", err, map[string]interface{}{"key": key})
		return 0, fmt.Errorf("failed to get attempts: %w", err)
	}
	return count, nil
}

type window struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter is a process-local limiter for single-instance deployments
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]window
	blocked  map[string]time.Time
	now      func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]window),
		blocked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)

func (l *MemoryLimiter) CheckLimit(ctx context.Context, key string, limit int, _ time.Duration) (bool, error) {
	current, err := l.GetAttempts(ctx, key)
	if err != nil {
		return false, err
	}
	return current < limit, nil
}

func (l *MemoryLimiter) Increment(_ context.Context, key string, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.counters[key]
	if !w.expiresAt.After(now) {
		w.count = 0
	}
	w.count++
	w.expiresAt = now.Add(d)
	l.counters[key] = w
	return nil
}

func (l *MemoryLimiter) Block(_ context.Context, key string, d time.Duration, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocked[key] = l.now().Add(d)
	return nil
}

func (l *MemoryLimiter) IsBlocked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.blocked[key]
	if !ok {
		return false, nil
	}
	if !until.After(l.now()) {
		delete(l.blocked, key)
		return false, nil
	}
	return true, nil
}

func (l *MemoryLimiter) GetAttempts(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters[key]
	if !ok {
		return 0, nil
	}
	if !w.expiresAt.After(l.now()) {
		delete(l.counters, key)
		return 0, nil
	}
	return w.count, nil
}

// NoopLimiter allows everything; used when rate limiting is disabled
type NoopLimiter struct{}

var _ ports.RateLimiter = NoopLimiter{}

func (NoopLimiter) CheckLimit(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (NoopLimiter) Increment(context.Context, string, time.Duration) error {
	return nil
}

func (NoopLimiter) Block(context.Context, string, time.Duration, string) error {
	return nil
}

func (NoopLimiter) IsBlocked(context.Context, string) (bool, error) {
	return false, nil
}

func (NoopLimiter) GetAttempts(context.Context, string) (int, error) {
	return 0, nil
}
