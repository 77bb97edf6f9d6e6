package model

import (
	"time"

	"github.com/google/uuid"
)

// ProposalStatus is the review state of a proposal. Transitions exactly
// once, pending to approved or rejected, and is immutable after.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a candidate entity awaiting human review. Approval spawns a
// Node plus Evidence pair from ProposedData; rejection records the outcome
// and mutates nothing else.
type Proposal struct {
	ID                   uuid.UUID      `json:"id"`
	ProjectID            uuid.UUID      `json:"project_id"`
	ProposedBy           string         `json:"proposed_by"`
	EntityType           EntityType     `json:"entity_type"`
	ProposedData         map[string]any `json:"proposed_data"`
	AIConfidence         float64        `json:"ai_confidence"`
	AIReasoning          *string        `json:"ai_reasoning,omitempty"`
	Citations            []string       `json:"citations,omitempty"`
	SourceType           string         `json:"source_type,omitempty"`
	SourceID             string         `json:"source_id,omitempty"`
	Status               ProposalStatus `json:"status"`
	RequiresApprovalFrom *uuid.UUID     `json:"requires_approval_from,omitempty"`
	CreatedNodeID        *uuid.UUID     `json:"created_node_id,omitempty"`
	ReviewedBy           *string        `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time     `json:"reviewed_at,omitempty"`
	ReviewNotes          *string        `json:"review_notes,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`

	// Joined data (populated by queries, not stored in proposals).
	ApproverRole *Role `json:"approver_role,omitempty"`
}

// ProposalStats summarizes proposal disposition for a project.
type ProposalStats struct {
	Pending       int     `json:"pending"`
	Approved      int     `json:"approved"`
	Rejected      int     `json:"rejected"`
	Total         int     `json:"total"`
	AvgConfidence float64 `json:"avg_confidence"`
}
