package torii

import (
	"io/fs"
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported. Callers use the With* functions.
type resolvedOptions struct {
	databaseURL     string
	notifyURL       string
	redisURL        string
	logger          *slog.Logger
	version         string
	eventHooks      []EventHook
	rateLimiter     RateLimiter
	batchLimit      int
	batchWindow     time.Duration
	otelEndpoint    string
	otelInsecure    bool
	skipMigrations  bool
	extraMigrations []fs.FS
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when using a connection pooler (e.g. PgBouncer) for queries, since
// LISTEN/NOTIFY requires a direct (non-pooled) connection.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithRedisURL overrides the Redis connection string from config (REDIS_URL env var).
// Redis backs the batch admission limiter; without it admission is unlimited.
func WithRedisURL(url string) Option {
	return func(o *resolvedOptions) { o.redisURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in telemetry and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEventHook registers an event hook to receive graph lifecycle notifications.
// Multiple hooks may be registered; all registered hooks receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithRateLimiter replaces the built-in Redis sliding-window limiter for
// batch admission. Only the last call wins. When set, REDIS_URL is ignored.
func WithRateLimiter(rl RateLimiter) Option {
	return func(o *resolvedOptions) { o.rateLimiter = rl }
}

// WithBatchRateLimit overrides the built-in limiter's budget: how many
// extraction batches one actor may submit per window
// (TORII_BATCH_RATE_LIMIT and TORII_BATCH_RATE_WINDOW env vars).
// It has no effect when WithRateLimiter is also set.
func WithBatchRateLimit(limit int, window time.Duration) Option {
	return func(o *resolvedOptions) {
		o.batchLimit = limit
		o.batchWindow = window
	}
}

// WithTelemetry overrides the OTLP exporter endpoint from config
// (OTEL_EXPORTER_OTLP_ENDPOINT and TORII_OTEL_INSECURE env vars).
func WithTelemetry(endpoint string, insecure bool) Option {
	return func(o *resolvedOptions) {
		o.otelEndpoint = endpoint
		o.otelInsecure = insecure
	}
}

// WithoutMigrations skips running embedded migrations during New.
// Use when schema management is handled externally; New still verifies
// that the core tables exist.
func WithoutMigrations() Option {
	return func(o *resolvedOptions) { o.skipMigrations = true }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run after
// the embedded migrations. Multiple filesystems may be registered; they are
// applied in registration order. The FS must contain sequentially numbered
// SQL files matching the embedded migration format.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
