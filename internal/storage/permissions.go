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

// UpsertPermission inserts or replaces the permission row for
// (role, entity type).
func (db *DB) UpsertPermission(ctx context.Context, p model.RolePermission) (model.RolePermission, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.AutoCreateThreshold == 0 {
		p.AutoCreateThreshold = model.DefaultAutoCreateThreshold
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO role_permissions (
		     id, role_id, entity_type, can_create, can_read, can_update, can_delete,
		     auto_create_enabled, auto_create_threshold, requires_approval, approval_from_role,
		     created_at, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (role_id, entity_type) DO UPDATE SET
		     can_create = EXCLUDED.can_create,
		     can_read = EXCLUDED.can_read,
		     can_update = EXCLUDED.can_update,
		     can_delete = EXCLUDED.can_delete,
		     auto_create_enabled = EXCLUDED.auto_create_enabled,
		     auto_create_threshold = EXCLUDED.auto_create_threshold,
		     requires_approval = EXCLUDED.requires_approval,
		     approval_from_role = EXCLUDED.approval_from_role,
		     updated_at = EXCLUDED.updated_at`,
		p.ID, p.RoleID, p.EntityType, p.CanCreate, p.CanRead, p.CanUpdate, p.CanDelete,
		p.AutoCreateEnabled, p.AutoCreateThreshold, p.RequiresApproval, p.ApprovalFromRole,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return model.RolePermission{}, fmt.Errorf("storage: upsert permission: %w", err)
	}
	return p, nil
}

// GetPermission retrieves the permission row for (role, entity type).
// Returns ErrNotFound when no row exists; callers substitute the
// fail-closed default.
func (db *DB) GetPermission(ctx context.Context, roleID uuid.UUID, entityType model.EntityType) (model.RolePermission, error) {
	var p model.RolePermission
	err := db.pool.QueryRow(ctx,
		`SELECT id, role_id, entity_type, can_create, can_read, can_update, can_delete,
		        auto_create_enabled, auto_create_threshold, requires_approval, approval_from_role,
		        created_at, updated_at
		 FROM role_permissions WHERE role_id = $1 AND entity_type = $2`,
		roleID, entityType,
	).Scan(
		&p.ID, &p.RoleID, &p.EntityType, &p.CanCreate, &p.CanRead, &p.CanUpdate, &p.CanDelete,
		&p.AutoCreateEnabled, &p.AutoCreateThreshold, &p.RequiresApproval, &p.ApprovalFromRole,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RolePermission{}, fmt.Errorf("storage: permission %s/%s: %w", roleID, entityType, ErrNotFound)
		}
		return model.RolePermission{}, fmt.Errorf("storage: get permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns all permission rows for a role.
func (db *DB) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]model.RolePermission, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, role_id, entity_type, can_create, can_read, can_update, can_delete,
		        auto_create_enabled, auto_create_threshold, requires_approval, approval_from_role,
		        created_at, updated_at
		 FROM role_permissions WHERE role_id = $1
		 ORDER BY entity_type`, roleID)
	if err != nil {
		return nil, fmt.Errorf("storage: list permissions: %w", err)
	}
	defer rows.Close()

	var perms []model.RolePermission
	for rows.Next() {
		var p model.RolePermission
		if err := rows.Scan(
			&p.ID, &p.RoleID, &p.EntityType, &p.CanCreate, &p.CanRead, &p.CanUpdate, &p.CanDelete,
			&p.AutoCreateEnabled, &p.AutoCreateThreshold, &p.RequiresApproval, &p.ApprovalFromRole,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
