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

// CreateNodeParams holds all data needed to commit a knowledge-graph node
// together with its evidence within a single database transaction.
type CreateNodeParams struct {
	Node     model.Node
	Evidence []model.Evidence
}

// CreateNodeTx inserts a node and its evidence rows atomically. This
// prevents partial writes that could leave a committed node without its
// provenance. Every evidence row is rebound to the new node id; callers
// cannot point the pair at anything else.
func (db *DB) CreateNodeTx(ctx context.Context, params CreateNodeParams) (model.Node, []model.Evidence, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Node{}, nil, fmt.Errorf("storage: begin node tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, evs, err := createNodePairTx(ctx, tx, params)
	if err != nil {
		return model.Node{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Node{}, nil, fmt.Errorf("storage: commit node tx: %w", err)
	}
	return n, evs, nil
}

// createNodePairTx inserts the node and its evidence within the caller's
// transaction. Shared by CreateNodeTx and ApproveProposalTx.
func createNodePairTx(ctx context.Context, tx pgx.Tx, params CreateNodeParams) (model.Node, []model.Evidence, error) {
	now := time.Now().UTC()

	// 1. Create node.
	n := params.Node
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.Attrs == nil {
		n.Attrs = map[string]any{}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO kg_nodes (id, project_id, node_type, attrs, confidence, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.ProjectID, string(n.NodeType), n.Attrs, n.Confidence, n.CreatedBy, n.CreatedAt,
	); err != nil {
		return model.Node{}, nil, fmt.Errorf("storage: create node in node tx: %w", err)
	}

	// 2. Create evidence via COPY, each row bound to the new node.
	evs := make([]model.Evidence, len(params.Evidence))
	for i, ev := range params.Evidence {
		ev.Entity = model.NodeRef(n.ID)
		ev.ProjectID = n.ProjectID
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		if ev.CreatedBy == "" {
			ev.CreatedBy = n.CreatedBy
		}
		if ev.EntityType == "" {
			ev.EntityType = string(n.NodeType)
		}
		evs[i] = ev
	}
	if err := insertEvidenceTx(ctx, tx, evs); err != nil {
		return model.Node{}, nil, fmt.Errorf("storage: create evidence in node tx: %w", err)
	}

	return n, evs, nil
}

// GetNode retrieves a knowledge-graph node by ID.
func (db *DB) GetNode(ctx context.Context, id uuid.UUID) (model.Node, error) {
	var n model.Node
	err := db.pool.QueryRow(ctx,
		`SELECT id, project_id, node_type, attrs, confidence, created_by, created_at
		 FROM kg_nodes WHERE id = $1`, id,
	).Scan(&n.ID, &n.ProjectID, &n.NodeType, &n.Attrs, &n.Confidence, &n.CreatedBy, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Node{}, fmt.Errorf("storage: node %s: %w", id, ErrNotFound)
		}
		return model.Node{}, fmt.Errorf("storage: get node: %w", err)
	}
	return n, nil
}

// ListNodes returns a project's nodes, newest first.
func (db *DB) ListNodes(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]model.Node, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, node_type, attrs, confidence, created_by, created_at
		 FROM kg_nodes WHERE project_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		var n model.Node
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.NodeType, &n.Attrs, &n.Confidence, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// CountNodes returns the number of nodes in a project.
func (db *DB) CountNodes(ctx context.Context, projectID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM kg_nodes WHERE project_id = $1`, projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count nodes: %w", err)
	}
	return count, nil
}
