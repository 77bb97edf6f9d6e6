// Package notify publishes engine events over Postgres LISTEN/NOTIFY.
// Every publish is fire-and-forget from the caller's point of view: errors
// are returned so the caller can log them, but nothing retries and nothing
// ever blocks or fails the mutation that triggered the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/torii/internal/storage"
)

// NodeEvent announces a committed knowledge-graph node.
type NodeEvent struct {
	NodeID     uuid.UUID `json:"node_id"`
	ProjectID  uuid.UUID `json:"project_id"`
	NodeType   string    `json:"node_type"`
	Title      string    `json:"title"`
	CreatedBy  string    `json:"created_by"`
	Confidence float64   `json:"confidence"`
}

// ProposalEvent announces a proposal entering or leaving review.
// ApproverRole carries the resolved approver's display name, or the default
// label when no approver could be resolved.
type ProposalEvent struct {
	ProposalID   uuid.UUID `json:"proposal_id"`
	ProjectID    uuid.UUID `json:"project_id"`
	EntityType   string    `json:"entity_type"`
	Title        string    `json:"title"`
	ProposedBy   string    `json:"proposed_by"`
	Status       string    `json:"status"`
	ApproverRole string    `json:"approver_role,omitempty"`
	ReviewedBy   string    `json:"reviewed_by,omitempty"`
}

// Notifier publishes engine events to interested listeners.
type Notifier interface {
	NodeCreated(ctx context.Context, ev NodeEvent) error
	ProposalCreated(ctx context.Context, ev ProposalEvent) error
	ProposalResolved(ctx context.Context, ev ProposalEvent) error
}

// PGNotifier publishes events as JSON payloads via pg_notify.
type PGNotifier struct {
	db *storage.DB
}

// NewPGNotifier creates a Notifier backed by the storage layer's notify
// plumbing.
func NewPGNotifier(db *storage.DB) *PGNotifier {
	return &PGNotifier{db: db}
}

// NodeCreated publishes on the nodes channel.
func (n *PGNotifier) NodeCreated(ctx context.Context, ev NodeEvent) error {
	return n.publish(ctx, storage.ChannelNodes, ev)
}

// ProposalCreated publishes on the proposals channel.
func (n *PGNotifier) ProposalCreated(ctx context.Context, ev ProposalEvent) error {
	return n.publish(ctx, storage.ChannelProposals, ev)
}

// ProposalResolved publishes on the proposals channel.
func (n *PGNotifier) ProposalResolved(ctx context.Context, ev ProposalEvent) error {
	return n.publish(ctx, storage.ChannelProposals, ev)
}

func (n *PGNotifier) publish(ctx context.Context, channel string, ev any) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	return n.db.Notify(ctx, channel, string(payload))
}

// Nop is a Notifier that discards every event. Used when no notify
// connection is configured and in tests.
type Nop struct{}

// NodeCreated discards the event.
func (Nop) NodeCreated(context.Context, NodeEvent) error { return nil }

// ProposalCreated discards the event.
func (Nop) ProposalCreated(context.Context, ProposalEvent) error { return nil }

// ProposalResolved discards the event.
func (Nop) ProposalResolved(context.Context, ProposalEvent) error { return nil }
