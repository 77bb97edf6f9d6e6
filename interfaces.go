package torii

import (
	"context"
	"time"
)

// EventHook receives async notifications when graph lifecycle events occur.
// Multiple hooks may be registered via multiple WithEventHook calls.
// Hook methods run in goroutines with a bounded context after the
// originating write has committed — they must not block indefinitely.
// Failures are logged but never fail the originating operation.
type EventHook interface {
	OnNodeCreated(ctx context.Context, node Node) error
	OnProposalCreated(ctx context.Context, proposal Proposal) error
	OnProposalResolved(ctx context.Context, proposal Proposal) error
}

// RateLimiter gates batch admission per actor.
// When provided via WithRateLimiter, replaces the built-in Redis sliding
// window for ProcessExtractedEntities admission checks.
// resetAt tells a denied caller when budget returns; it is advisory and
// may be zero. A non-nil err fails open: the batch is admitted and the
// error is logged, matching the built-in limiter's contract.
type RateLimiter interface {
	Allow(ctx context.Context, actorID string) (allowed bool, resetAt time.Time, err error)
}
