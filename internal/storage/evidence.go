package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/torii/internal/model"
)

var evidenceColumns = []string{
	"id", "project_id", "entity_kind", "entity_row_id", "node_id", "entity_type",
	"source_type", "source_id", "quote", "context", "confidence",
	"extraction_method", "created_by", "created_at",
}

// CreateEvidence inserts a single evidence record. The entity reference
// must validate; the row id and node id spaces never mix.
func (db *DB) CreateEvidence(ctx context.Context, ev model.Evidence) (model.Evidence, error) {
	if err := ev.Entity.Validate(); err != nil {
		return model.Evidence{}, fmt.Errorf("storage: create evidence: %w", err)
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO evidence (id, project_id, entity_kind, entity_row_id, node_id, entity_type,
		 source_type, source_id, quote, context, confidence, extraction_method, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.ID, ev.ProjectID, string(ev.Entity.Kind), ev.Entity.RowID, ev.Entity.NodeID, ev.EntityType,
		ev.SourceType, ev.SourceID, ev.Quote, ev.Context, ev.Confidence,
		ev.ExtractionMethod, ev.CreatedBy, ev.CreatedAt,
	)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("storage: create evidence: %w", err)
	}
	return ev, nil
}

// insertEvidenceTx COPYs evidence rows within an existing transaction.
// Used by CreateNodeTx and ApproveProposalTx so the node and its
// provenance commit or roll back together.
func insertEvidenceTx(ctx context.Context, tx pgx.Tx, evs []model.Evidence) error {
	if len(evs) == 0 {
		return nil
	}

	rows := make([][]any, len(evs))
	for i, ev := range evs {
		if err := ev.Entity.Validate(); err != nil {
			return fmt.Errorf("evidence[%d]: %w", i, err)
		}
		id := ev.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		rows[i] = []any{
			id, ev.ProjectID, string(ev.Entity.Kind), ev.Entity.RowID, ev.Entity.NodeID, ev.EntityType,
			ev.SourceType, ev.SourceID, ev.Quote, ev.Context, ev.Confidence,
			ev.ExtractionMethod, ev.CreatedBy, createdAt,
		}
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"evidence"}, evidenceColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy evidence: %w", err)
	}
	return nil
}

func scanEvidence(rows pgx.Rows) (model.Evidence, error) {
	var (
		ev     model.Evidence
		kind   string
		rowID  *int64
		nodeID *uuid.UUID
	)
	err := rows.Scan(
		&ev.ID, &ev.ProjectID, &kind, &rowID, &nodeID, &ev.EntityType,
		&ev.SourceType, &ev.SourceID, &ev.Quote, &ev.Context, &ev.Confidence,
		&ev.ExtractionMethod, &ev.CreatedBy, &ev.CreatedAt,
	)
	if err != nil {
		return model.Evidence{}, err
	}
	ev.Entity = model.EntityRef{Kind: model.EntityKind(kind), RowID: rowID, NodeID: nodeID}
	return ev, nil
}

// GetEvidenceByNode retrieves all evidence rows referencing a graph node.
func (db *DB) GetEvidenceByNode(ctx context.Context, nodeID uuid.UUID) ([]model.Evidence, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, entity_kind, entity_row_id, node_id, entity_type,
		        source_type, source_id, quote, context, confidence, extraction_method, created_by, created_at
		 FROM evidence WHERE entity_kind = $1 AND node_id = $2
		 ORDER BY created_at ASC, id ASC`, string(model.EntityKindNode), nodeID)
	if err != nil {
		return nil, fmt.Errorf("storage: get evidence by node: %w", err)
	}
	defer rows.Close()

	var evs []model.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan evidence: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// GetEvidenceByRow retrieves all evidence rows referencing a legacy
// numeric row id.
func (db *DB) GetEvidenceByRow(ctx context.Context, rowID int64) ([]model.Evidence, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, entity_kind, entity_row_id, node_id, entity_type,
		        source_type, source_id, quote, context, confidence, extraction_method, created_by, created_at
		 FROM evidence WHERE entity_kind = $1 AND entity_row_id = $2
		 ORDER BY created_at ASC, id ASC`, string(model.EntityKindRow), rowID)
	if err != nil {
		return nil, fmt.Errorf("storage: get evidence by row: %w", err)
	}
	defer rows.Close()

	var evs []model.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan evidence: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// EvidenceCoverageStats holds evidence coverage metrics for a project.
type EvidenceCoverageStats struct {
	TotalNodes           int
	WithEvidence         int
	WithoutEvidenceCount int
	CoveragePercent      float64
}

// GetEvidenceCoverageStats returns how many of a project's nodes have at
// least one evidence record. Nodes are always created with evidence here,
// so anything below 100% points at out-of-band writes.
func (db *DB) GetEvidenceCoverageStats(ctx context.Context, projectID uuid.UUID) (EvidenceCoverageStats, error) {
	var s EvidenceCoverageStats
	err := db.pool.QueryRow(ctx, `
		SELECT count(DISTINCT n.id) AS total,
		       count(DISTINCT e.node_id) AS with_evidence
		FROM kg_nodes n
		LEFT JOIN evidence e ON e.node_id = n.id AND e.entity_kind = 'node'
		WHERE n.project_id = $1`, projectID).Scan(
		&s.TotalNodes, &s.WithEvidence)
	if err != nil {
		return s, fmt.Errorf("storage: evidence coverage stats: %w", err)
	}
	s.WithoutEvidenceCount = s.TotalNodes - s.WithEvidence
	if s.TotalNodes > 0 {
		s.CoveragePercent = float64(s.WithEvidence) / float64(s.TotalNodes) * 100
	}
	return s, nil
}
