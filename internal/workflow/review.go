package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/torii/internal/ctxutil"
	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/notify"
	"github.com/ashita-ai/torii/internal/storage"
)

// ApproveProposal resolves a pending proposal as approved and commits the
// node plus evidence pair it proposed, stamping reviewer provenance into
// the node's attributes. Exactly one review can ever succeed; a proposal
// already resolved surfaces as storage.ErrConflict.
func (e *Engine) ApproveProposal(ctx context.Context, proposalID uuid.UUID, reviewerID string, notes *string) (model.Proposal, model.Node, error) {
	// 1. Load the stored payload. The pending guard lives in the
	// transaction below, not here.
	p, err := e.db.GetProposal(ctx, proposalID)
	if err != nil {
		return model.Proposal{}, model.Node{}, fmt.Errorf("workflow: approve: %w", err)
	}

	// 2. Rebuild the node from proposed_data plus reviewer provenance.
	attrs := make(map[string]any, len(p.ProposedData)+2)
	for k, v := range p.ProposedData {
		attrs[k] = v
	}
	attrs[model.AttrApprovedBy] = reviewerID
	attrs[model.AttrApprovedAt] = time.Now().UTC().Format(time.RFC3339)

	// 3. Flip status and create the pair in one transaction.
	src := model.Source{Type: p.SourceType, ID: p.SourceID}
	approved, n, evs, err := e.db.ApproveProposalTx(ctx, storage.ApproveProposalParams{
		ProposalID:  proposalID,
		ReviewedBy:  reviewerID,
		ReviewNotes: notes,
		Node: model.Node{
			ProjectID:  p.ProjectID,
			NodeType:   p.EntityType,
			Attrs:      attrs,
			Confidence: p.AIConfidence,
			CreatedBy:  p.ProposedBy,
		},
		Evidence: evidenceRows(p.Citations, titleOf(p.ProposedData), src, p.AIConfidence),
	})
	if err != nil {
		return model.Proposal{}, model.Node{}, fmt.Errorf("workflow: approve: %w", err)
	}
	e.resolvedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(model.ProposalApproved)),
	))

	// 4. Post-commit bookkeeping, best-effort.
	e.audit(ctx, storage.MutationAuditEntry{
		ProjectID:  p.ProjectID,
		ActorID:    reviewerID,
		Operation:  "approve_proposal",
		EntityType: string(p.EntityType),
		EntityID:   proposalID.String(),
		Decision:   string(model.ProposalApproved),
		BeforeData: map[string]any{"status": model.ProposalPending},
		AfterData:  map[string]any{"status": model.ProposalApproved, "created_node_id": n.ID},
		Metadata:   ctxutil.AuditMetadata(ctx, map[string]any{"evidence": len(evs)}),
	})
	if err := e.notifier.ProposalResolved(ctx, notify.ProposalEvent{
		ProposalID: approved.ID,
		ProjectID:  approved.ProjectID,
		EntityType: string(approved.EntityType),
		Title:      titleOf(approved.ProposedData),
		ProposedBy: approved.ProposedBy,
		Status:     string(approved.Status),
		ReviewedBy: reviewerID,
	}); err != nil {
		e.logger.Error("workflow: proposal resolved notify", "proposal_id", approved.ID, "error", err)
	}
	if err := e.notifier.NodeCreated(ctx, notify.NodeEvent{
		NodeID:     n.ID,
		ProjectID:  n.ProjectID,
		NodeType:   string(n.NodeType),
		Title:      titleOf(n.Attrs),
		CreatedBy:  n.CreatedBy,
		Confidence: n.Confidence,
	}); err != nil {
		e.logger.Error("workflow: node created notify", "node_id", n.ID, "error", err)
	}
	e.fireHooks("proposal_resolved", func(ctx context.Context, h EventHook) error {
		return h.OnProposalResolved(ctx, approved)
	})
	e.fireHooks("node_created", func(ctx context.Context, h EventHook) error {
		return h.OnNodeCreated(ctx, n)
	})

	e.logger.Info("workflow: proposal approved",
		"proposal_id", approved.ID, "node_id", n.ID, "reviewed_by", reviewerID)
	return approved, n, nil
}

// RejectProposal resolves a pending proposal as rejected. Nothing enters
// the graph; the review outcome is the only mutation.
func (e *Engine) RejectProposal(ctx context.Context, proposalID uuid.UUID, reviewerID string, notes *string) (model.Proposal, error) {
	rejected, err := e.db.RejectProposal(ctx, proposalID, reviewerID, notes)
	if err != nil {
		return model.Proposal{}, fmt.Errorf("workflow: reject: %w", err)
	}
	e.resolvedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(model.ProposalRejected)),
	))

	e.audit(ctx, storage.MutationAuditEntry{
		ProjectID:  rejected.ProjectID,
		ActorID:    reviewerID,
		Operation:  "reject_proposal",
		EntityType: string(rejected.EntityType),
		EntityID:   proposalID.String(),
		Decision:   string(model.ProposalRejected),
		BeforeData: map[string]any{"status": model.ProposalPending},
		AfterData:  map[string]any{"status": model.ProposalRejected},
		Metadata:   ctxutil.AuditMetadata(ctx, nil),
	})
	if err := e.notifier.ProposalResolved(ctx, notify.ProposalEvent{
		ProposalID: rejected.ID,
		ProjectID:  rejected.ProjectID,
		EntityType: string(rejected.EntityType),
		Title:      titleOf(rejected.ProposedData),
		ProposedBy: rejected.ProposedBy,
		Status:     string(rejected.Status),
		ReviewedBy: reviewerID,
	}); err != nil {
		e.logger.Error("workflow: proposal resolved notify", "proposal_id", rejected.ID, "error", err)
	}
	e.fireHooks("proposal_resolved", func(ctx context.Context, h EventHook) error {
		return h.OnProposalResolved(ctx, rejected)
	})

	e.logger.Info("workflow: proposal rejected",
		"proposal_id", rejected.ID, "reviewed_by", reviewerID)
	return rejected, nil
}

// PendingProposals lists a project's review queue, newest first, optionally
// narrowed to proposals addressed to one approver role.
func (e *Engine) PendingProposals(ctx context.Context, projectID uuid.UUID, approverRoleID *uuid.UUID, limit, offset int) ([]model.Proposal, error) {
	return e.db.ListPendingProposals(ctx, projectID, approverRoleID, limit, offset)
}

// ProposalStats summarizes proposal disposition for a project.
func (e *Engine) ProposalStats(ctx context.Context, projectID uuid.UUID) (model.ProposalStats, error) {
	return e.db.GetProposalStats(ctx, projectID)
}
