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

const roleColumns = `id, project_id, role_code, display_name, authority_level, reports_to, active, created_at, updated_at`

func scanRole(row pgx.Row) (model.Role, error) {
	var r model.Role
	err := row.Scan(&r.ID, &r.ProjectID, &r.RoleCode, &r.DisplayName, &r.AuthorityLevel,
		&r.ReportsTo, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateRole inserts a project-scoped role. ReportsTo, when set, must
// reference an existing role in the same project and must not introduce a
// cycle in the reporting tree.
func (db *DB) CreateRole(ctx context.Context, role model.Role) (model.Role, error) {
	if err := model.ValidateRole(role); err != nil {
		return model.Role{}, fmt.Errorf("storage: create role: %w", err)
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	now := time.Now().UTC()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	role.Active = true

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Role{}, fmt.Errorf("storage: begin create role tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if role.ReportsTo != nil {
		if err := checkReportsTo(ctx, tx, role.ProjectID, role.ID, *role.ReportsTo); err != nil {
			return model.Role{}, err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO roles (id, project_id, role_code, display_name, authority_level, reports_to, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		role.ID, role.ProjectID, role.RoleCode, role.DisplayName, role.AuthorityLevel,
		role.ReportsTo, role.Active, role.CreatedAt, role.UpdatedAt,
	); err != nil {
		return model.Role{}, fmt.Errorf("storage: create role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Role{}, fmt.Errorf("storage: commit create role tx: %w", err)
	}
	return role, nil
}

// UpdateRole updates a role's display name, authority level, and reporting
// parent. The same cycle check as CreateRole applies.
func (db *DB) UpdateRole(ctx context.Context, role model.Role) error {
	if err := model.ValidateRole(role); err != nil {
		return fmt.Errorf("storage: update role: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin update role tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if role.ReportsTo != nil {
		if err := checkReportsTo(ctx, tx, role.ProjectID, role.ID, *role.ReportsTo); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE roles SET display_name = $1, authority_level = $2, reports_to = $3, updated_at = $4
		 WHERE id = $5`,
		role.DisplayName, role.AuthorityLevel, role.ReportsTo, time.Now().UTC(), role.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: role %s: %w", role.ID, ErrNotFound)
	}
	return tx.Commit(ctx)
}

// checkReportsTo verifies that parentID exists in the same project and that
// walking reports_to upward from it never reaches roleID. Runs inside the
// caller's transaction so the check and the write see the same tree.
func checkReportsTo(ctx context.Context, tx pgx.Tx, projectID, roleID, parentID uuid.UUID) error {
	if parentID == roleID {
		return fmt.Errorf("storage: role %s cannot report to itself", roleID)
	}

	var parentProject uuid.UUID
	err := tx.QueryRow(ctx, `SELECT project_id FROM roles WHERE id = $1`, parentID).Scan(&parentProject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: reports_to role %s: %w", parentID, ErrNotFound)
		}
		return fmt.Errorf("storage: check reports_to: %w", err)
	}
	if parentProject != projectID {
		return fmt.Errorf("storage: reports_to role %s belongs to a different project", parentID)
	}

	var cyclic bool
	err = tx.QueryRow(ctx, `
		WITH RECURSIVE chain AS (
			SELECT id, reports_to FROM roles WHERE id = $1
			UNION ALL
			SELECT r.id, r.reports_to FROM roles r JOIN chain c ON r.id = c.reports_to
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)`,
		parentID, roleID,
	).Scan(&cyclic)
	if err != nil {
		return fmt.Errorf("storage: check reports_to cycle: %w", err)
	}
	if cyclic {
		return fmt.Errorf("storage: reports_to %s would create a cycle for role %s", parentID, roleID)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (db *DB) GetRole(ctx context.Context, id uuid.UUID) (model.Role, error) {
	r, err := scanRole(db.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Role{}, fmt.Errorf("storage: role %s: %w", id, ErrNotFound)
		}
		return model.Role{}, fmt.Errorf("storage: get role: %w", err)
	}
	return r, nil
}

// GetRoleByCode retrieves a role by its project-scoped code.
func (db *DB) GetRoleByCode(ctx context.Context, projectID uuid.UUID, code string) (model.Role, error) {
	r, err := scanRole(db.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE project_id = $1 AND role_code = $2`, projectID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Role{}, fmt.Errorf("storage: role %s: %w", code, ErrNotFound)
		}
		return model.Role{}, fmt.Errorf("storage: get role by code: %w", err)
	}
	return r, nil
}

// ListActiveRoles returns a project's active roles, highest authority first.
func (db *DB) ListActiveRoles(ctx context.Context, projectID uuid.UUID) ([]model.Role, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE project_id = $1 AND active
		 ORDER BY authority_level DESC, role_code ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list active roles: %w", err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// NearestSuperiorRole returns the lowest-authority active role in the
// project whose authority level strictly exceeds the given level. Ties
// break alphabetically by role code so the result is deterministic.
// Returns ErrNotFound when no higher-authority role exists.
func (db *DB) NearestSuperiorRole(ctx context.Context, projectID uuid.UUID, authorityLevel int) (model.Role, error) {
	r, err := scanRole(db.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE project_id = $1 AND active AND authority_level > $2
		 ORDER BY authority_level ASC, role_code ASC
		 LIMIT 1`, projectID, authorityLevel))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Role{}, fmt.Errorf("storage: superior role above level %d: %w", authorityLevel, ErrNotFound)
		}
		return model.Role{}, fmt.Errorf("storage: nearest superior role: %w", err)
	}
	return r, nil
}

// DeactivateRole soft-deletes a role. Existing assignments stop resolving
// through it; history is preserved.
func (db *DB) DeactivateRole(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE roles SET active = false, updated_at = $1 WHERE id = $2 AND active`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storage: deactivate role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: role %s: %w", id, ErrNotFound)
	}
	return nil
}
