package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType enumerates the evidence source types the extraction pipeline
// produces. The set is open.
const (
	SourceChatMessage     = "chat_message"
	SourceEmail           = "email"
	SourceTranscriptChunk = "transcript_chunk"
	SourceThoughtCapture  = "thought_capture"
	SourceDocument        = "document"
)

// Extraction methods recorded on evidence rows.
const (
	ExtractionAI     = "ai_extraction"
	ExtractionManual = "manual"
)

// EntityKind discriminates the two id spaces an evidence row can reference.
type EntityKind string

const (
	// EntityKindRow references a legacy numeric row id.
	EntityKindRow EntityKind = "row"
	// EntityKindNode references a knowledge-graph node id.
	EntityKindNode EntityKind = "node"
)

// EntityRef is a tagged reference to the entity an evidence row
// substantiates. Exactly one of RowID and NodeID is set, matching Kind;
// the two id spaces never share a column.
type EntityRef struct {
	Kind   EntityKind `json:"kind"`
	RowID  *int64     `json:"row_id,omitempty"`
	NodeID *uuid.UUID `json:"node_id,omitempty"`
}

// NodeRef builds an EntityRef for a knowledge-graph node.
func NodeRef(id uuid.UUID) EntityRef {
	return EntityRef{Kind: EntityKindNode, NodeID: &id}
}

// RowRef builds an EntityRef for a legacy numeric row id.
func RowRef(id int64) EntityRef {
	return EntityRef{Kind: EntityKindRow, RowID: &id}
}

// Validate checks that exactly one reference side is set and matches Kind.
func (r EntityRef) Validate() error {
	switch r.Kind {
	case EntityKindRow:
		if r.RowID == nil || r.NodeID != nil {
			return fmt.Errorf("row entity ref must set row_id only")
		}
	case EntityKindNode:
		if r.NodeID == nil || r.RowID != nil {
			return fmt.Errorf("node entity ref must set node_id only")
		}
	default:
		return fmt.Errorf("unknown entity ref kind %q", r.Kind)
	}
	return nil
}

// String renders the reference for logs.
func (r EntityRef) String() string {
	switch r.Kind {
	case EntityKindRow:
		if r.RowID != nil {
			return fmt.Sprintf("row:%d", *r.RowID)
		}
	case EntityKindNode:
		if r.NodeID != nil {
			return "node:" + r.NodeID.String()
		}
	}
	return "invalid"
}

// Evidence links a committed or proposed entity to its raw source: the
// quoted excerpt, surrounding context, and how it was extracted. Immutable.
type Evidence struct {
	ID               uuid.UUID `json:"id"`
	ProjectID        uuid.UUID `json:"project_id"`
	Entity           EntityRef `json:"entity"`
	EntityType       string    `json:"entity_type"`
	SourceType       string    `json:"source_type"`
	SourceID         string    `json:"source_id"`
	Quote            string    `json:"quote,omitempty"`
	Context          string    `json:"context,omitempty"`
	Confidence       string    `json:"confidence,omitempty"` // label, not a score
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConfidenceLabel buckets a numeric confidence into the label stored on
// evidence rows.
func ConfidenceLabel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
