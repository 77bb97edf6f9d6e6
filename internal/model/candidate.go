package model

import (
	"fmt"
	"strings"
	"time"
)

// EntityType classifies a candidate, graph node, or proposal payload.
// The set is open: extractors may emit types beyond the canonical ones.
type EntityType string

const (
	EntityDecision EntityType = "decision"
	EntityRisk     EntityType = "risk"
	EntityTask     EntityType = "task"
	EntityIssue    EntityType = "issue"
)

// Impact levels recognized by the routing rules. Candidates may carry other
// strings; only "critical" changes routing behavior.
const (
	ImpactLow      = "low"
	ImpactMedium   = "medium"
	ImpactHigh     = "high"
	ImpactCritical = "critical"
)

// Field length limits for candidate fields. These cap what a single
// extraction payload can push into Postgres TEXT/JSONB columns.
const (
	MaxTitleLen       = 500
	MaxDescriptionLen = 32 * 1024 // 32 KB
	MaxReasoningLen   = 64 * 1024 // 64 KB
)

// CandidateEntity is one extraction candidate from an inference call.
// Ephemeral: consumed exactly once by the workflow engine, never stored
// in this shape. Committed candidates become Nodes; routed ones become
// Proposals.
type CandidateEntity struct {
	EntityType       EntityType `json:"entity_type"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Confidence       float64    `json:"confidence"`
	Impact           string     `json:"impact,omitempty"`
	Priority         string     `json:"priority,omitempty"` // extractor synonym for Impact
	Tags             []string   `json:"tags,omitempty"`
	Citations        []string   `json:"citations,omitempty"`
	MentionedUsers   []string   `json:"mentioned_users,omitempty"`
	RelatedEntityIDs []string   `json:"related_entity_ids,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	Owner            *string    `json:"owner,omitempty"`
	Reasoning        *string    `json:"reasoning,omitempty"`
}

// Source identifies the raw input a batch of candidates was extracted from
// (chat message, email, transcript chunk, thought capture, document, ...).
type Source struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EffectiveImpact returns the candidate's impact lower-cased and trimmed,
// falling back to Priority when Impact is unset. Routing rules compare
// against the lower-cased form only.
func (c CandidateEntity) EffectiveImpact() string {
	if v := strings.TrimSpace(c.Impact); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(strings.TrimSpace(c.Priority))
}

// Validate checks the minimal candidate shape. Invalid candidates are
// skipped, not failed: a malformed extraction must not abort its batch.
func (c CandidateEntity) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
	}
	if strings.TrimSpace(string(c.EntityType)) == "" {
		return fmt.Errorf("entity_type is required")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0, 1], got %v", c.Confidence)
	}
	if len(c.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds maximum length of %d bytes", MaxDescriptionLen)
	}
	if c.Reasoning != nil && len(*c.Reasoning) > MaxReasoningLen {
		return fmt.Errorf("reasoning exceeds maximum length of %d bytes", MaxReasoningLen)
	}
	return nil
}
