package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/torii/internal/model"
)

// AssignRole binds a user to a role in a project, optionally bounded by a
// validity window.
func (db *DB) AssignRole(ctx context.Context, a model.RoleAssignment) (model.RoleAssignment, error) {
	if err := model.ValidateUserID(a.UserID); err != nil {
		return model.RoleAssignment{}, fmt.Errorf("storage: assign role: %w", err)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO role_assignments (id, user_id, project_id, role_id, is_primary,
		     valid_from, valid_until, assigned_at, assigned_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.ProjectID, a.RoleID, a.IsPrimary,
		a.ValidFrom, a.ValidUntil, a.AssignedAt, a.AssignedBy,
	)
	if err != nil {
		return model.RoleAssignment{}, fmt.Errorf("storage: assign role: %w", err)
	}
	return a, nil
}

// EndAssignment closes an assignment's validity window as of now. The row
// stays for history; the assignment stops resolving immediately.
func (db *DB) EndAssignment(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE role_assignments SET valid_until = $1
		 WHERE id = $2 AND (valid_until IS NULL OR valid_until > $1)`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storage: end assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: assignment %s: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveAssignments returns a user's assignments in a project that are
// in-window at the given instant and whose roles are active, each joined
// with its role. Ordering matches effective-role resolution: authority
// level descending, primary first, most recent assignment first, then id
// for a total order.
func (db *DB) ActiveAssignments(ctx context.Context, userID string, projectID uuid.UUID, at time.Time) ([]model.RoleAssignment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.id, a.user_id, a.project_id, a.role_id, a.is_primary,
		        a.valid_from, a.valid_until, a.assigned_at, a.assigned_by,
		        r.id, r.project_id, r.role_code, r.display_name, r.authority_level,
		        r.reports_to, r.active, r.created_at, r.updated_at
		 FROM role_assignments a
		 JOIN roles r ON r.id = a.role_id
		 WHERE a.user_id = $1
		   AND a.project_id = $2
		   AND r.active
		   AND (a.valid_from IS NULL OR a.valid_from <= $3)
		   AND (a.valid_until IS NULL OR a.valid_until > $3)
		 ORDER BY r.authority_level DESC, a.is_primary DESC, a.assigned_at DESC, a.id ASC`,
		userID, projectID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: active assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.RoleAssignment
	for rows.Next() {
		var a model.RoleAssignment
		var r model.Role
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.ProjectID, &a.RoleID, &a.IsPrimary,
			&a.ValidFrom, &a.ValidUntil, &a.AssignedAt, &a.AssignedBy,
			&r.ID, &r.ProjectID, &r.RoleCode, &r.DisplayName, &r.AuthorityLevel,
			&r.ReportsTo, &r.Active, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan assignment: %w", err)
		}
		a.Role = &r
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ListAssignments returns all assignments for a user in a project,
// including expired and future ones, newest first.
func (db *DB) ListAssignments(ctx context.Context, userID string, projectID uuid.UUID) ([]model.RoleAssignment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, project_id, role_id, is_primary,
		        valid_from, valid_until, assigned_at, assigned_by
		 FROM role_assignments
		 WHERE user_id = $1 AND project_id = $2
		 ORDER BY assigned_at DESC`, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.RoleAssignment
	for rows.Next() {
		var a model.RoleAssignment
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.ProjectID, &a.RoleID, &a.IsPrimary,
			&a.ValidFrom, &a.ValidUntil, &a.AssignedAt, &a.AssignedBy,
		); err != nil {
			return nil, fmt.Errorf("storage: scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
