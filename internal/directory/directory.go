// Package directory resolves which role a user acts under in a project and
// what that role may do. Resolution is fail-closed throughout: no active
// assignment means no access, and a missing permission row yields the
// read-only default rather than an error.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/storage"
)

// ErrNoRole indicates the user holds no active, in-window assignment in the
// project. Callers treat this as "no access", never as a transient failure.
var ErrNoRole = errors.New("directory: no effective role")

// DefaultCacheTTL bounds how stale a cached effective-role resolution can
// get when an assignment is changed out-of-band (directly in the database).
const DefaultCacheTTL = 30 * time.Second

// approverStrategy attempts to resolve an approver for the given role.
// A nil role with a nil error means the strategy has nothing to offer and
// the next one runs.
type approverStrategy func(ctx context.Context, role model.Role) (*model.Role, error)

// Directory is the role and permission resolution service.
type Directory struct {
	db         *storage.DB
	cache      *roleCache
	group      singleflight.Group
	strategies []approverStrategy
	logger     *slog.Logger
}

// New creates a Directory backed by db. The approver strategy chain is
// fixed: reports_to one hop, then nearest higher authority.
func New(db *storage.DB, cacheTTL time.Duration, logger *slog.Logger) *Directory {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	d := &Directory{
		db:     db,
		cache:  newRoleCache(cacheTTL),
		logger: logger,
	}
	d.strategies = []approverStrategy{d.reportsToStrategy, d.nearestHigherAuthorityStrategy}
	return d
}

// Close stops the cache eviction goroutine.
func (d *Directory) Close() {
	d.cache.Close()
}

func cacheKey(userID string, projectID uuid.UUID) string {
	return userID + ":" + projectID.String()
}

// EffectiveRole resolves the single role a user acts under in a project
// right now: the highest-authority active assignment, preferring primary
// assignments and then newer ones on equal authority. Returns ErrNoRole
// when nothing resolves.
func (d *Directory) EffectiveRole(ctx context.Context, userID string, projectID uuid.UUID) (model.Role, error) {
	key := cacheKey(userID, projectID)
	if role, ok := d.cache.Get(key); ok {
		return role, nil
	}

	// Deduplicate concurrent resolutions of the same pair. Use
	// context.Background() instead of the caller's ctx because singleflight
	// reuses the first caller's context; if that caller cancels, all
	// waiters would get a spurious error.
	v, err, _ := d.group.Do(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		assignments, err := d.db.ActiveAssignments(loadCtx, userID, projectID, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("directory: resolve effective role: %w", err)
		}
		if len(assignments) == 0 || assignments[0].Role == nil {
			return nil, fmt.Errorf("directory: user %s in project %s: %w", userID, projectID, ErrNoRole)
		}

		role := *assignments[0].Role
		d.cache.Set(key, role)
		return role, nil
	})
	if err != nil {
		return model.Role{}, err
	}
	return v.(model.Role), nil
}

// Permission returns the permission row for (role, entity type), or the
// fail-closed default when none is configured. Only infrastructure
// failures surface as errors.
func (d *Directory) Permission(ctx context.Context, roleID uuid.UUID, entityType model.EntityType) (model.RolePermission, error) {
	p, err := d.db.GetPermission(ctx, roleID, entityType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			d.logger.Debug("directory: no permission row, using fail-closed default",
				"role_id", roleID, "entity_type", entityType)
			return model.DefaultPermission(roleID, entityType), nil
		}
		return model.RolePermission{}, err
	}
	return p, nil
}

// ApproverRole resolves who reviews proposals raised by the given role.
// Strategies run in order; the first one that produces a role wins.
// Returns (nil, nil) when no approver exists, which callers surface as an
// unaddressed proposal rather than an error.
func (d *Directory) ApproverRole(ctx context.Context, role model.Role) (*model.Role, error) {
	for _, strategy := range d.strategies {
		approver, err := strategy(ctx, role)
		if err != nil {
			return nil, err
		}
		if approver != nil {
			return approver, nil
		}
	}
	return nil, nil
}

// reportsToStrategy follows the role's reports_to edge one hop. Misses when
// the edge is unset, dangling, or the parent has been deactivated.
func (d *Directory) reportsToStrategy(ctx context.Context, role model.Role) (*model.Role, error) {
	if role.ReportsTo == nil {
		return nil, nil
	}
	parent, err := d.db.GetRole(ctx, *role.ReportsTo)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: reports_to lookup: %w", err)
	}
	if !parent.Active {
		return nil, nil
	}
	return &parent, nil
}

// nearestHigherAuthorityStrategy picks the lowest-authority active role
// whose authority level strictly exceeds the given role's. Authority is
// compared by level, not by position in the reporting tree.
func (d *Directory) nearestHigherAuthorityStrategy(ctx context.Context, role model.Role) (*model.Role, error) {
	superior, err := d.db.NearestSuperiorRole(ctx, role.ProjectID, role.AuthorityLevel)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: nearest superior lookup: %w", err)
	}
	return &superior, nil
}

// Administration. Writes that can change a resolution invalidate the cache
// so the next lookup sees them.

// CreateRole creates a project role.
func (d *Directory) CreateRole(ctx context.Context, role model.Role) (model.Role, error) {
	return d.db.CreateRole(ctx, role)
}

// UpdateRole updates a role. Authority changes can reorder any user's
// resolution in the project, so the whole cache is dropped.
func (d *Directory) UpdateRole(ctx context.Context, role model.Role) error {
	if err := d.db.UpdateRole(ctx, role); err != nil {
		return err
	}
	d.cache.Flush()
	return nil
}

// DeactivateRole soft-deletes a role and drops the cache.
func (d *Directory) DeactivateRole(ctx context.Context, id uuid.UUID) error {
	if err := d.db.DeactivateRole(ctx, id); err != nil {
		return err
	}
	d.cache.Flush()
	return nil
}

// UpsertPermission writes the permission row for (role, entity type).
func (d *Directory) UpsertPermission(ctx context.Context, p model.RolePermission) (model.RolePermission, error) {
	return d.db.UpsertPermission(ctx, p)
}

// AssignRole binds a user to a role and invalidates that user's cached
// resolution.
func (d *Directory) AssignRole(ctx context.Context, a model.RoleAssignment) (model.RoleAssignment, error) {
	created, err := d.db.AssignRole(ctx, a)
	if err != nil {
		return model.RoleAssignment{}, err
	}
	d.cache.Invalidate(cacheKey(created.UserID, created.ProjectID))
	return created, nil
}

// EndAssignment closes an assignment's validity window. The assignment's
// user is not known here, so the whole cache is dropped.
func (d *Directory) EndAssignment(ctx context.Context, id uuid.UUID) error {
	if err := d.db.EndAssignment(ctx, id); err != nil {
		return err
	}
	d.cache.Flush()
	return nil
}

// ListActiveRoles returns a project's active roles, highest authority first.
func (d *Directory) ListActiveRoles(ctx context.Context, projectID uuid.UUID) ([]model.Role, error) {
	return d.db.ListActiveRoles(ctx, projectID)
}
