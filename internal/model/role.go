package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Authority level bounds. Level 5 is the highest rank in a project;
// only relative ordering matters to the routing rules.
const (
	MinAuthorityLevel = 1
	MaxAuthorityLevel = 5
)

// DefaultAutoCreateThreshold is the per-permission confidence threshold
// applied when a permission row does not set one.
const DefaultAutoCreateThreshold = 0.9

// Role is a project-scoped role with an authority rank. Roles form a
// reporting tree via ReportsTo (acyclic, enforced at write time) and are
// soft-deleted by clearing Active.
type Role struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	RoleCode       string     `json:"role_code"`
	DisplayName    string     `json:"display_name"`
	AuthorityLevel int        `json:"authority_level"`
	ReportsTo      *uuid.UUID `json:"reports_to,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RolePermission holds a role's per-entity-type permissions and the knobs
// the routing rules read: the auto-create toggle, its confidence threshold,
// and the role approvals route to.
type RolePermission struct {
	ID                  uuid.UUID  `json:"id"`
	RoleID              uuid.UUID  `json:"role_id"`
	EntityType          EntityType `json:"entity_type"`
	CanCreate           bool       `json:"can_create"`
	CanRead             bool       `json:"can_read"`
	CanUpdate           bool       `json:"can_update"`
	CanDelete           bool       `json:"can_delete"`
	AutoCreateEnabled   bool       `json:"auto_create_enabled"`
	AutoCreateThreshold float64    `json:"auto_create_threshold"`
	RequiresApproval    bool       `json:"requires_approval"`
	ApprovalFromRole    *uuid.UUID `json:"approval_from_role,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DefaultPermission is the fail-closed permission substituted when no row
// exists for (role, entity type): read-only, approval required, auto-create
// off. Absence of configuration must never widen access.
func DefaultPermission(roleID uuid.UUID, entityType EntityType) RolePermission {
	return RolePermission{
		RoleID:              roleID,
		EntityType:          entityType,
		CanRead:             true,
		AutoCreateThreshold: DefaultAutoCreateThreshold,
		RequiresApproval:    true,
	}
}

// RoleAssignment binds a user to a role within a project, optionally
// bounded by a validity window. A user may hold several assignments per
// project; exactly one effective role resolves per decision.
type RoleAssignment struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	ProjectID  uuid.UUID  `json:"project_id"`
	RoleID     uuid.UUID  `json:"role_id"`
	IsPrimary  bool       `json:"is_primary"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy string     `json:"assigned_by,omitempty"`

	// Joined data (populated by queries, not stored in role_assignments).
	Role *Role `json:"role,omitempty"`
}

// ActiveAt reports whether the assignment window covers t. Nil bounds are
// open; ValidUntil is exclusive.
func (a RoleAssignment) ActiveAt(t time.Time) bool {
	if a.ValidFrom != nil && t.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && !t.Before(*a.ValidUntil) {
		return false
	}
	return true
}

// ValidateRole checks role fields before insert or update.
func ValidateRole(r Role) error {
	if r.ProjectID == uuid.Nil {
		return fmt.Errorf("project_id is required")
	}
	if err := ValidateRoleCode(r.RoleCode); err != nil {
		return err
	}
	if r.AuthorityLevel < MinAuthorityLevel || r.AuthorityLevel > MaxAuthorityLevel {
		return fmt.Errorf("authority_level must be within [%d, %d], got %d",
			MinAuthorityLevel, MaxAuthorityLevel, r.AuthorityLevel)
	}
	return nil
}

// ValidateRoleCode checks that a role code conforms to the allowed format.
// Role codes must start with a lowercase letter and contain only lowercase
// alphanumeric characters, hyphens, and underscores.
func ValidateRoleCode(code string) error {
	if len(code) == 0 {
		return fmt.Errorf("role_code is required")
	}
	if len(code) > 64 {
		return fmt.Errorf("role_code must be at most 64 characters")
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if i == 0 {
			if c < 'a' || c > 'z' {
				return fmt.Errorf("role_code must start with a lowercase letter, got %q", c)
			}
			continue
		}
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return fmt.Errorf("role_code contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}

// ValidateUserID checks that a user ID conforms to the allowed format.
// User IDs must be 1-255 ASCII characters: alphanumeric, dots, hyphens,
// underscores, and @ signs.
func ValidateUserID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("user_id is required")
	}
	if len(id) > 255 {
		return fmt.Errorf("user_id must be at most 255 characters")
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' {
			return fmt.Errorf("user_id contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
