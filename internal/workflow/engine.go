package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/torii/internal/directory"
	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/notify"
	"github.com/ashita-ai/torii/internal/ratelimit"
	"github.com/ashita-ai/torii/internal/storage"
	"github.com/ashita-ai/torii/internal/telemetry"
)

// ErrRateLimited is returned by ProcessBatch when the actor is over their
// batch budget. No candidate work happens in that case.
var ErrRateLimited = errors.New("workflow: rate limited")

// DefaultApproverLabel is the review destination announced when no approver
// role could be resolved for a proposal.
const DefaultApproverLabel = "project administrator"

// Defaults for the built-in batch admission rule.
const (
	DefaultBatchLimit  = 100
	DefaultBatchWindow = time.Hour
)

// hookTimeout bounds a single event hook invocation.
const hookTimeout = 10 * time.Second

// Limiter gates batch admission per actor before any candidate work runs.
// Implementations must fail open: if limit state cannot be read, admit.
type Limiter interface {
	AllowBatch(ctx context.Context, actorID string) ratelimit.Result
}

// NewSlidingWindowLimiter adapts the shared Redis limiter to batch
// admission under a fixed per-actor rule.
func NewSlidingWindowLimiter(l *ratelimit.Limiter, limit int, window time.Duration) Limiter {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	if window <= 0 {
		window = DefaultBatchWindow
	}
	return &slidingWindowLimiter{
		limiter: l,
		rule:    ratelimit.Rule{Prefix: "batches", Limit: limit, Window: window},
	}
}

type slidingWindowLimiter struct {
	limiter *ratelimit.Limiter
	rule    ratelimit.Rule
}

func (s *slidingWindowLimiter) AllowBatch(ctx context.Context, actorID string) ratelimit.Result {
	return s.limiter.Allow(ctx, s.rule, actorID)
}

// allowAll is the admission gate used when no limiter is configured.
type allowAll struct{}

func (allowAll) AllowBatch(context.Context, string) ratelimit.Result {
	return ratelimit.Result{Allowed: true}
}

// EventHook receives engine lifecycle events after commit.
//
// Hook methods are called asynchronously in goroutines with a bounded
// context. Implementations must not block indefinitely. Failures are logged
// and do not fail the originating operation.
type EventHook interface {
	OnNodeCreated(ctx context.Context, node model.Node) error
	OnProposalCreated(ctx context.Context, proposal model.Proposal) error
	OnProposalResolved(ctx context.Context, proposal model.Proposal) error
}

// Engine routes extraction batches into the knowledge graph and drives the
// proposal review lifecycle. It holds no state of its own; all persistence
// goes through storage, all identity questions through the directory.
type Engine struct {
	db       *storage.DB
	dir      *directory.Directory
	notifier notify.Notifier
	limiter  Limiter
	hooks    []EventHook
	logger   *slog.Logger

	routedTotal   metric.Int64Counter
	resolvedTotal metric.Int64Counter
	batchDuration metric.Float64Histogram
}

// Config assembles an Engine. DB and Directory are required; everything
// else has a working zero value (no notifications, no admission limit, no
// hooks).
type Config struct {
	DB        *storage.DB
	Directory *directory.Directory
	Notifier  notify.Notifier
	Limiter   Limiter
	Hooks     []EventHook
	Logger    *slog.Logger
}

// New creates a workflow Engine.
func New(cfg Config) *Engine {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = allowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	meter := telemetry.Meter("torii/workflow")
	routed, _ := meter.Int64Counter("torii.candidates.routed",
		metric.WithDescription("Candidates routed, by route kind and matched rule"),
	)
	resolved, _ := meter.Int64Counter("torii.proposals.resolved",
		metric.WithDescription("Proposals resolved, by review outcome"),
	)
	batchDur, _ := meter.Float64Histogram("torii.batch.duration",
		metric.WithDescription("Time to process an extraction batch (ms)"),
		metric.WithUnit("ms"),
	)

	return &Engine{
		db:            cfg.DB,
		dir:           cfg.Directory,
		notifier:      cfg.Notifier,
		limiter:       cfg.Limiter,
		hooks:         cfg.Hooks,
		logger:        cfg.Logger,
		routedTotal:   routed,
		resolvedTotal: resolved,
		batchDuration: batchDur,
	}
}

// fireHooks invokes fn on every registered hook, each in its own goroutine
// detached from the request context so post-commit work survives the
// caller returning.
func (e *Engine) fireHooks(event string, fn func(ctx context.Context, h EventHook) error) {
	for _, h := range e.hooks {
		h := h
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()
			if err := fn(ctx, h); err != nil {
				e.logger.Warn("workflow: event hook failed", "event", event, "error", err)
			}
		}()
	}
}

// audit appends a mutation audit entry. Audit failures are logged, never
// propagated: the mutation they describe has already committed.
func (e *Engine) audit(ctx context.Context, entry storage.MutationAuditEntry) {
	if err := e.db.InsertMutationAudit(ctx, entry); err != nil {
		e.logger.Error("workflow: audit append failed",
			"operation", entry.Operation, "entity_id", entry.EntityID, "error", err)
	}
}
