// Package ratelimit provides a Redis-backed sliding-window rate limiter.
//
// State lives in Redis so limits survive process restarts and are shared
// across every instance processing the same project. With a nil client the
// limiter runs in noop mode and allows everything, which keeps single-node
// and test setups free of a Redis dependency.
package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule describes one limit: at most Limit events per Window, namespaced by
// Prefix so independent operations get independent budgets.
type Rule struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// Result is the outcome of a single Allow check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// FormatHeaders renders the result as standard rate-limit response headers.
func (r Result) FormatHeaders() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
}

// Limiter is a sliding-window rate limiter over Redis sorted sets.
// Safe for concurrent use.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Limiter. A nil client puts the limiter in noop mode where
// every request is allowed.
func New(client *redis.Client, logger *slog.Logger) *Limiter {
	return &Limiter{client: client, logger: logger}
}

// Allow records one event for (rule, key) and reports whether it fits the
// window. The window state is a ZSET of microsecond timestamps; expired
// members are trimmed on every check and the whole key expires with the
// window, so idle keys cost nothing.
//
// Redis failures are fail-open: an unreachable limiter must degrade to
// unlimited, not block all traffic.
func (l *Limiter) Allow(ctx context.Context, rule Rule, key string) Result {
	if l.client == nil {
		return Result{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit,
			ResetAt:   time.Now().Add(rule.Window),
		}
	}

	now := time.Now()
	redisKey := "ratelimit:" + rule.Prefix + ":" + key
	windowStart := now.Add(-rule.Window).UnixMicro()

	// Trim expired members, then count what's left in the window.
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("ratelimit: redis check failed, allowing request", "error", err, "prefix", rule.Prefix)
		return Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit, ResetAt: now.Add(rule.Window)}
	}

	count := int(countCmd.Val())
	if count >= rule.Limit {
		return Result{
			Allowed:   false,
			Limit:     rule.Limit,
			Remaining: 0,
			ResetAt:   l.resetAt(ctx, redisKey, rule.Window, now),
		}
	}

	// Record this event. The member is the microsecond timestamp, so two
	// events in the same microsecond collapse into one; at that rate the
	// limiter is not the accuracy bottleneck.
	member := strconv.FormatInt(now.UnixMicro(), 10)
	addPipe := l.client.TxPipeline()
	addPipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	addPipe.Expire(ctx, redisKey, rule.Window+time.Second)
	if _, err := addPipe.Exec(ctx); err != nil {
		l.logger.Warn("ratelimit: redis record failed, allowing request", "error", err, "prefix", rule.Prefix)
	}

	return Result{
		Allowed:   true,
		Limit:     rule.Limit,
		Remaining: rule.Limit - count - 1,
		ResetAt:   now.Add(rule.Window),
	}
}

// resetAt computes when the oldest in-window event leaves the window. Falls
// back to now+window when the ZSET read fails.
func (l *Limiter) resetAt(ctx context.Context, redisKey string, window time.Duration, now time.Time) time.Time {
	oldest, err := l.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return now.Add(window)
	}
	return time.UnixMicro(int64(oldest[0].Score)).Add(window)
}

// Close releases the Redis connection. Safe to call in noop mode.
func (l *Limiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
