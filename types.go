package torii

import (
	"time"

	"github.com/google/uuid"
)

// Canonical entity types. The set is open: extractors may emit types
// beyond these, and the engine routes them all the same way.
const (
	EntityDecision = "decision"
	EntityRisk     = "risk"
	EntityTask     = "task"
	EntityIssue    = "issue"
)

// Impact levels recognized by the routing rules. Only "critical" changes
// routing behavior; the rest are carried through as node attributes.
const (
	ImpactLow      = "low"
	ImpactMedium   = "medium"
	ImpactHigh     = "high"
	ImpactCritical = "critical"
)

// Routes a candidate can take through the engine.
const (
	RouteAutoCreate = "auto_create"
	RoutePropose    = "propose"
	RouteSkip       = "skip"
)

// Proposal review states.
const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalRejected = "rejected"
)

// Candidate is one extracted entity submitted for routing.
// It is the public representation of internal/model.CandidateEntity.
// No internal package imports — safe to construct from outside the module.
type Candidate struct {
	EntityType       string
	Title            string
	Description      string
	Confidence       float64
	Impact           string
	Priority         string // extractor synonym for Impact
	Tags             []string
	Citations        []string
	MentionedUsers   []string
	RelatedEntityIDs []string
	Deadline         *time.Time
	Owner            *string
	Reasoning        *string
}

// Source identifies the raw input a batch of candidates was extracted from
// (chat message, email, transcript chunk, thought capture, document, ...).
type Source struct {
	Type     string
	ID       string
	Metadata map[string]any
}

// Node is a committed knowledge-graph entity.
type Node struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	NodeType   string
	Attrs      map[string]any
	Confidence float64
	CreatedBy  string
	CreatedAt  time.Time
}

// Proposal is a candidate entity awaiting, or past, human review.
type Proposal struct {
	ID                   uuid.UUID
	ProjectID            uuid.UUID
	ProposedBy           string
	EntityType           string
	ProposedData         map[string]any
	AIConfidence         float64
	AIReasoning          *string
	Citations            []string
	SourceType           string
	SourceID             string
	Status               string
	RequiresApprovalFrom *uuid.UUID
	CreatedNodeID        *uuid.UUID
	ReviewedBy           *string
	ReviewedAt           *time.Time
	ReviewNotes          *string
	CreatedAt            time.Time
	// ApproverRole is the joined role designated to review, when one exists.
	ApproverRole *Role
}

// ProposalStats summarizes proposal disposition for a project.
type ProposalStats struct {
	Pending       int
	Approved      int
	Rejected      int
	Total         int
	AvgConfidence float64
}

// Role is a project-scoped role with an authority rank between 1 and 5.
type Role struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	RoleCode       string
	DisplayName    string
	AuthorityLevel int
	ReportsTo      *uuid.UUID
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RolePermission holds a role's per-entity-type permissions and the knobs
// the routing rules read.
type RolePermission struct {
	ID                  uuid.UUID
	RoleID              uuid.UUID
	EntityType          string
	CanCreate           bool
	CanRead             bool
	CanUpdate           bool
	CanDelete           bool
	AutoCreateEnabled   bool
	AutoCreateThreshold float64
	RequiresApproval    bool
	ApprovalFromRole    *uuid.UUID
}

// RoleAssignment binds a user to a role within a project, optionally
// bounded by a validity window. Nil bounds are open; ValidUntil is
// exclusive.
type RoleAssignment struct {
	ID         uuid.UUID
	UserID     string
	ProjectID  uuid.UUID
	RoleID     uuid.UUID
	IsPrimary  bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
	AssignedAt time.Time
	AssignedBy string
}

// Project is a tenant workspace owning roles, graph nodes, and proposals.
type Project struct {
	ID   uuid.UUID
	Name string
	Slug string
	// DefaultAutoCreateThreshold, when set, overrides the per-permission
	// confidence threshold for every candidate in the project.
	DefaultAutoCreateThreshold *float64
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// EntityOutcome is the per-candidate verdict in a batch result.
type EntityOutcome struct {
	Index      int
	EntityType string
	Title      string
	// Route is one of RouteAutoCreate, RoutePropose, RouteSkip.
	Route  string
	Rule   int
	Reason string
	// NodeID is set when the route was auto-create and the write committed.
	NodeID *uuid.UUID
	// ProposalID and ApproverRole are set when the route was propose.
	ProposalID   *uuid.UUID
	ApproverRole string
	// Error is set when this candidate failed without affecting its siblings.
	Error string
}

// BatchSummary counts outcomes across one batch.
type BatchSummary struct {
	AutoCreated int
	Proposals   int
	Skipped     int
	Errors      int
}

// BatchResult is the full per-batch report. Processed counts every
// candidate the engine looked at, including skips and failures.
type BatchResult struct {
	Processed int
	Results   []EntityOutcome
	Summary   BatchSummary
}

// Notification is one graph or proposal event relayed off Postgres
// LISTEN/NOTIFY. Payload is the raw JSON the engine published.
type Notification struct {
	Channel string
	Payload string
}
