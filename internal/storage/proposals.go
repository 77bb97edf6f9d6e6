package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/torii/internal/model"
)

const proposalColumns = `id, project_id, proposed_by, entity_type, proposed_data, ai_confidence,
	ai_reasoning, citations, source_type, source_id, status, requires_approval_from,
	created_node_id, reviewed_by, reviewed_at, review_notes, created_at`

func scanProposal(row pgx.Row) (model.Proposal, error) {
	var p model.Proposal
	err := row.Scan(
		&p.ID, &p.ProjectID, &p.ProposedBy, &p.EntityType, &p.ProposedData, &p.AIConfidence,
		&p.AIReasoning, &p.Citations, &p.SourceType, &p.SourceID, &p.Status, &p.RequiresApprovalFrom,
		&p.CreatedNodeID, &p.ReviewedBy, &p.ReviewedAt, &p.ReviewNotes, &p.CreatedAt,
	)
	return p, err
}

// CreateProposal inserts a pending proposal.
func (db *DB) CreateProposal(ctx context.Context, p model.Proposal) (model.Proposal, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Status = model.ProposalPending
	if p.ProposedData == nil {
		p.ProposedData = map[string]any{}
	}
	if p.Citations == nil {
		p.Citations = []string{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO proposals (id, project_id, proposed_by, entity_type, proposed_data, ai_confidence,
		     ai_reasoning, citations, source_type, source_id, status, requires_approval_from, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.ProjectID, p.ProposedBy, string(p.EntityType), p.ProposedData, p.AIConfidence,
		p.AIReasoning, p.Citations, p.SourceType, p.SourceID, string(p.Status), p.RequiresApprovalFrom, p.CreatedAt,
	)
	if err != nil {
		return model.Proposal{}, fmt.Errorf("storage: create proposal: %w", err)
	}
	return p, nil
}

// GetProposal retrieves a proposal by ID.
func (db *DB) GetProposal(ctx context.Context, id uuid.UUID) (model.Proposal, error) {
	p, err := scanProposal(db.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Proposal{}, fmt.Errorf("storage: proposal %s: %w", id, ErrNotFound)
		}
		return model.Proposal{}, fmt.Errorf("storage: get proposal: %w", err)
	}
	return p, nil
}

// ApproveProposalParams holds everything needed to resolve a proposal as
// approved and commit the resulting node plus evidence in one transaction.
// Node and Evidence are built by the caller from the proposal's stored data.
type ApproveProposalParams struct {
	ProposalID  uuid.UUID
	ReviewedBy  string
	ReviewNotes *string
	Node        model.Node
	Evidence    []model.Evidence
}

// ApproveProposalTx flips a pending proposal to approved and creates the
// node and evidence pair atomically. The status flip is guarded: if another
// reviewer already resolved the proposal, nothing is written and
// ErrConflict is returned. Exactly one approval can ever succeed.
func (db *DB) ApproveProposalTx(ctx context.Context, params ApproveProposalParams) (model.Proposal, model.Node, []model.Evidence, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Proposal{}, model.Node{}, nil, fmt.Errorf("storage: begin approve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	// 1. Flip status under the optimistic pending guard.
	p, err := scanProposal(tx.QueryRow(ctx,
		`UPDATE proposals
		 SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4
		 WHERE id = $5 AND status = $6
		 RETURNING `+proposalColumns,
		string(model.ProposalApproved), params.ReviewedBy, now, params.ReviewNotes,
		params.ProposalID, string(model.ProposalPending),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Proposal{}, model.Node{}, nil, db.resolveReviewConflict(ctx, params.ProposalID)
		}
		return model.Proposal{}, model.Node{}, nil, fmt.Errorf("storage: approve proposal: %w", err)
	}

	// 2. Create the node and evidence pair.
	node, evs, err := createNodePairTx(ctx, tx, CreateNodeParams{Node: params.Node, Evidence: params.Evidence})
	if err != nil {
		return model.Proposal{}, model.Node{}, nil, err
	}

	// 3. Record the spawned node on the proposal.
	if _, err := tx.Exec(ctx,
		`UPDATE proposals SET created_node_id = $1 WHERE id = $2`,
		node.ID, p.ID,
	); err != nil {
		return model.Proposal{}, model.Node{}, nil, fmt.Errorf("storage: record created node: %w", err)
	}
	p.CreatedNodeID = &node.ID

	if err := tx.Commit(ctx); err != nil {
		return model.Proposal{}, model.Node{}, nil, fmt.Errorf("storage: commit approve tx: %w", err)
	}
	return p, node, evs, nil
}

// RejectProposal flips a pending proposal to rejected. Same optimistic
// guard as approval; rejection never creates a node.
func (db *DB) RejectProposal(ctx context.Context, proposalID uuid.UUID, reviewedBy string, reviewNotes *string) (model.Proposal, error) {
	p, err := scanProposal(db.pool.QueryRow(ctx,
		`UPDATE proposals
		 SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4
		 WHERE id = $5 AND status = $6
		 RETURNING `+proposalColumns,
		string(model.ProposalRejected), reviewedBy, time.Now().UTC(), reviewNotes,
		proposalID, string(model.ProposalPending),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Proposal{}, db.resolveReviewConflict(ctx, proposalID)
		}
		return model.Proposal{}, fmt.Errorf("storage: reject proposal: %w", err)
	}
	return p, nil
}

// resolveReviewConflict distinguishes a missing proposal from one already
// resolved by another reviewer.
func (db *DB) resolveReviewConflict(ctx context.Context, proposalID uuid.UUID) error {
	var status string
	err := db.pool.QueryRow(ctx,
		`SELECT status FROM proposals WHERE id = $1`, proposalID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: proposal %s: %w", proposalID, ErrNotFound)
		}
		return fmt.Errorf("storage: check proposal status: %w", err)
	}
	return fmt.Errorf("storage: proposal %s already %s: %w", proposalID, status, ErrConflict)
}

// ListPendingProposals returns a project's pending proposals, newest first,
// optionally filtered to those awaiting a specific approver role. The
// approver role is joined when resolvable.
func (db *DB) ListPendingProposals(ctx context.Context, projectID uuid.UUID, approverRoleID *uuid.UUID, limit, offset int) ([]model.Proposal, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT p.id, p.project_id, p.proposed_by, p.entity_type, p.proposed_data, p.ai_confidence,
	       p.ai_reasoning, p.citations, p.source_type, p.source_id, p.status, p.requires_approval_from,
	       p.created_node_id, p.reviewed_by, p.reviewed_at, p.review_notes, p.created_at,
	       r.id, r.project_id, r.role_code, r.display_name, r.authority_level, r.reports_to,
	       r.active, r.created_at, r.updated_at
	 FROM proposals p
	 LEFT JOIN roles r ON r.id = p.requires_approval_from
	 WHERE p.project_id = $1 AND p.status = $2`
	args := []any{projectID, string(model.ProposalPending)}

	if approverRoleID != nil {
		args = append(args, *approverRoleID)
		query += fmt.Sprintf(" AND p.requires_approval_from = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending proposals: %w", err)
	}
	defer rows.Close()

	var proposals []model.Proposal
	for rows.Next() {
		var (
			p            model.Proposal
			roleID       *uuid.UUID
			roleProject  *uuid.UUID
			roleCode     *string
			displayName  *string
			authority    *int
			reportsTo    *uuid.UUID
			active       *bool
			roleCreated  *time.Time
			roleUpdated  *time.Time
		)
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.ProposedBy, &p.EntityType, &p.ProposedData, &p.AIConfidence,
			&p.AIReasoning, &p.Citations, &p.SourceType, &p.SourceID, &p.Status, &p.RequiresApprovalFrom,
			&p.CreatedNodeID, &p.ReviewedBy, &p.ReviewedAt, &p.ReviewNotes, &p.CreatedAt,
			&roleID, &roleProject, &roleCode, &displayName, &authority, &reportsTo,
			&active, &roleCreated, &roleUpdated,
		); err != nil {
			return nil, fmt.Errorf("storage: scan pending proposal: %w", err)
		}
		if roleID != nil {
			p.ApproverRole = &model.Role{
				ID: *roleID, ProjectID: *roleProject, RoleCode: *roleCode, DisplayName: *displayName,
				AuthorityLevel: *authority, ReportsTo: reportsTo, Active: *active,
				CreatedAt: *roleCreated, UpdatedAt: *roleUpdated,
			}
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// GetProposalStats returns proposal disposition counts and the mean
// extraction confidence across all of a project's proposals.
func (db *DB) GetProposalStats(ctx context.Context, projectID uuid.UUID) (model.ProposalStats, error) {
	var s model.ProposalStats
	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'rejected'),
		       COUNT(*),
		       COALESCE(AVG(ai_confidence), 0)
		FROM proposals WHERE project_id = $1`, projectID).Scan(
		&s.Pending, &s.Approved, &s.Rejected, &s.Total, &s.AvgConfidence)
	if err != nil {
		return model.ProposalStats{}, fmt.Errorf("storage: proposal stats: %w", err)
	}
	return s, nil
}
