package model

import (
	"time"

	"github.com/google/uuid"
)

// Provenance attribute keys stamped into Node.Attrs when the engine commits
// a candidate.
const (
	AttrCreatedByAI  = "created_by_ai"
	AttrAIConfidence = "ai_confidence"
	AttrAIReasoning  = "ai_reasoning"
	AttrApprovedBy   = "approved_by"
	AttrApprovedAt   = "approved_at"
)

// Node is a committed knowledge-graph entity. Append-only: created
// atomically with its Evidence record and never deleted here. Later
// attribute patches are handled elsewhere.
type Node struct {
	ID         uuid.UUID      `json:"id"`
	ProjectID  uuid.UUID      `json:"project_id"`
	NodeType   EntityType     `json:"node_type"`
	Attrs      map[string]any `json:"attrs"`
	Confidence float64        `json:"confidence"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Project is a tenant workspace owning roles, graph nodes, and proposals.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`

	// DefaultAutoCreateThreshold, when set, takes precedence over the
	// per-permission threshold during rule evaluation.
	DefaultAutoCreateThreshold *float64 `json:"default_auto_create_threshold,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
