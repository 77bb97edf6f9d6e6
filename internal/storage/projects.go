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

// CreateProject inserts a new project.
func (db *DB) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, name, slug, default_auto_create_threshold, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Slug, p.DefaultAutoCreateThreshold, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by ID.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, slug, default_auto_create_threshold, created_at, updated_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Slug, &p.DefaultAutoCreateThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, fmt.Errorf("storage: get project %s: %w", id, ErrNotFound)
		}
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// GetProjectBySlug retrieves a project by slug.
func (db *DB) GetProjectBySlug(ctx context.Context, slug string) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, slug, default_auto_create_threshold, created_at, updated_at
		 FROM projects WHERE slug = $1`, slug,
	).Scan(&p.ID, &p.Name, &p.Slug, &p.DefaultAutoCreateThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, fmt.Errorf("storage: get project %s: %w", slug, ErrNotFound)
		}
		return model.Project{}, fmt.Errorf("storage: get project by slug: %w", err)
	}
	return p, nil
}

// SetProjectThreshold updates a project's default auto-create threshold.
// Pass nil to clear it, falling back to per-permission thresholds.
func (db *DB) SetProjectThreshold(ctx context.Context, id uuid.UUID, threshold *float64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE projects SET default_auto_create_threshold = $1, updated_at = $2 WHERE id = $3`,
		threshold, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storage: set project threshold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: set project threshold %s: %w", id, ErrNotFound)
	}
	return nil
}
