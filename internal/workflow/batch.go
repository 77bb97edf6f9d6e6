package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/torii/internal/ctxutil"
	"github.com/ashita-ai/torii/internal/directory"
	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/notify"
	"github.com/ashita-ai/torii/internal/storage"
)

// BatchInput is one extraction batch: candidates pulled from a single
// source, admitted on behalf of a single actor into a single project.
type BatchInput struct {
	ProjectID  uuid.UUID
	ActorID    string
	Source     model.Source
	Candidates []model.CandidateEntity
}

// EntityOutcome is the per-candidate verdict in a batch result.
type EntityOutcome struct {
	Index        int              `json:"index"`
	EntityType   model.EntityType `json:"entity_type"`
	Title        string           `json:"title"`
	Route        RouteKind        `json:"route,omitempty"`
	Rule         int              `json:"rule,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	NodeID       *uuid.UUID       `json:"node_id,omitempty"`
	ProposalID   *uuid.UUID       `json:"proposal_id,omitempty"`
	ApproverRole string           `json:"approver_role,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// BatchSummary counts outcomes across one batch.
type BatchSummary struct {
	AutoCreated int `json:"auto_created"`
	Proposals   int `json:"proposals"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

func (s *BatchSummary) count(out EntityOutcome) {
	switch {
	case out.Error != "":
		s.Errors++
	case out.Route == RouteAutoCreate:
		s.AutoCreated++
	case out.Route == RoutePropose:
		s.Proposals++
	default:
		s.Skipped++
	}
}

// BatchResult is the full per-batch report. Processed counts every
// candidate the engine looked at, including skips and failures.
type BatchResult struct {
	Processed int             `json:"processed"`
	Results   []EntityOutcome `json:"results"`
	Summary   BatchSummary    `json:"summary"`
}

// ProcessBatch routes every candidate in the batch independently: one
// candidate's failure never aborts its siblings. The only whole-batch
// refusals are admission (ErrRateLimited), an unknown project, and a
// directory infrastructure failure.
func (e *Engine) ProcessBatch(ctx context.Context, in BatchInput) (BatchResult, error) {
	start := time.Now()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("torii.actor_id", in.ActorID),
		attribute.String("torii.project_id", in.ProjectID.String()),
		attribute.Int("torii.batch_size", len(in.Candidates)),
	)

	// 1. Admission. The limiter fails open internally; an explicit deny is
	// the one signal that stops the batch before any candidate work.
	if res := e.limiter.AllowBatch(ctx, in.ActorID); !res.Allowed {
		return BatchResult{}, fmt.Errorf("workflow: batch budget exhausted for %s, resets %s: %w",
			in.ActorID, res.ResetAt.UTC().Format(time.RFC3339), ErrRateLimited)
	}

	// 2. Resolve the actor's effective role once per batch.
	role, err := e.dir.EffectiveRole(ctx, in.ActorID, in.ProjectID)
	if errors.Is(err, directory.ErrNoRole) {
		// Unknown actors are skipped, not failed: extraction output may
		// mention people who simply have no standing in the project.
		return e.skipAll(in, "no access"), nil
	}
	if err != nil {
		return BatchResult{}, fmt.Errorf("workflow: effective role: %w", err)
	}

	// 3. Load the project for its threshold override.
	project, err := e.db.GetProject(ctx, in.ProjectID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("workflow: load project: %w", err)
	}

	// 4. Route candidates one at a time.
	res := BatchResult{Results: make([]EntityOutcome, 0, len(in.Candidates))}
	for i, c := range in.Candidates {
		out := e.processOne(ctx, in, project, role, i, c)
		res.Summary.count(out)
		res.Results = append(res.Results, out)
	}
	res.Processed = len(res.Results)

	e.batchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	e.logger.Info("workflow: batch processed",
		"project_id", in.ProjectID,
		"actor_id", in.ActorID,
		"role", role.RoleCode,
		"processed", res.Processed,
		"auto_created", res.Summary.AutoCreated,
		"proposals", res.Summary.Proposals,
		"skipped", res.Summary.Skipped,
		"errors", res.Summary.Errors,
	)
	return res, nil
}

// processOne routes a single candidate and executes the verdict's side
// effects. Failures land in the outcome's Error field.
func (e *Engine) processOne(ctx context.Context, in BatchInput, project model.Project, role model.Role, idx int, c model.CandidateEntity) EntityOutcome {
	out := EntityOutcome{Index: idx, EntityType: c.EntityType, Title: strings.TrimSpace(c.Title)}

	// Malformed candidates are skipped, not failed.
	if err := c.Validate(); err != nil {
		out.Route, out.Reason = RouteSkip, err.Error()
		e.logger.Debug("workflow: candidate skipped", "index", idx, "reason", out.Reason)
		return out
	}

	perm, err := e.dir.Permission(ctx, role.ID, c.EntityType)
	if err != nil {
		out.Error = fmt.Sprintf("permission lookup: %v", err)
		e.logger.Error("workflow: permission lookup failed",
			"index", idx, "role_id", role.ID, "entity_type", c.EntityType, "error", err)
		return out
	}

	route := Decide(DecisionInput{
		Authority:  role.AuthorityLevel,
		Confidence: c.Confidence,
		Impact:     c.EffectiveImpact(),
		Threshold:  ResolveThreshold(project, perm),
		Permission: perm,
	})
	out.Route, out.Rule, out.Reason = route.Kind, route.Rule, route.Reason
	e.routedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", string(route.Kind)),
		attribute.Int("rule", route.Rule),
	))

	switch route.Kind {
	case RouteAutoCreate:
		n, err := e.autoCreate(ctx, in, role, c, route)
		if err != nil {
			out.Error = err.Error()
			e.logger.Error("workflow: auto-create failed", "index", idx, "title", out.Title, "error", err)
			return out
		}
		out.NodeID = &n.ID
	case RoutePropose:
		p, approverLabel, err := e.propose(ctx, in, role, c, route)
		if err != nil {
			out.Error = err.Error()
			e.logger.Error("workflow: propose failed", "index", idx, "title", out.Title, "error", err)
			return out
		}
		out.ProposalID = &p.ID
		out.ApproverRole = approverLabel
	}
	return out
}

// skipAll produces a batch result where every candidate is skipped for the
// same reason.
func (e *Engine) skipAll(in BatchInput, reason string) BatchResult {
	res := BatchResult{
		Processed: len(in.Candidates),
		Results:   make([]EntityOutcome, len(in.Candidates)),
	}
	for i, c := range in.Candidates {
		res.Results[i] = EntityOutcome{
			Index:      i,
			EntityType: c.EntityType,
			Title:      strings.TrimSpace(c.Title),
			Route:      RouteSkip,
			Reason:     reason,
		}
	}
	res.Summary.Skipped = len(in.Candidates)
	e.logger.Warn("workflow: batch skipped",
		"project_id", in.ProjectID, "actor_id", in.ActorID,
		"reason", reason, "candidates", len(in.Candidates))
	return res
}

// autoCreate commits the candidate as a node plus evidence pair, then runs
// the post-commit bookkeeping (audit, notify, hooks), all best-effort.
func (e *Engine) autoCreate(ctx context.Context, in BatchInput, role model.Role, c model.CandidateEntity, route Route) (model.Node, error) {
	n, evs, err := e.db.CreateNodeTx(ctx, storage.CreateNodeParams{
		Node: model.Node{
			ProjectID:  in.ProjectID,
			NodeType:   c.EntityType,
			Attrs:      nodeAttrs(c),
			Confidence: c.Confidence,
			CreatedBy:  in.ActorID,
		},
		Evidence: evidenceRows(c.Citations, strings.TrimSpace(c.Title), in.Source, c.Confidence),
	})
	if err != nil {
		return model.Node{}, err
	}

	e.audit(ctx, storage.MutationAuditEntry{
		ProjectID:  in.ProjectID,
		ActorID:    in.ActorID,
		ActorRole:  role.RoleCode,
		Operation:  "auto_create_node",
		EntityType: string(c.EntityType),
		EntityID:   n.ID.String(),
		Decision:   string(RouteAutoCreate),
		AfterData:  n,
		Metadata: ctxutil.AuditMetadata(ctx, map[string]any{
			"rule":        route.Rule,
			"reason":      route.Reason,
			"source_type": in.Source.Type,
			"source_id":   in.Source.ID,
			"evidence":    len(evs),
		}),
	})
	if err := e.notifier.NodeCreated(ctx, notify.NodeEvent{
		NodeID:     n.ID,
		ProjectID:  n.ProjectID,
		NodeType:   string(n.NodeType),
		Title:      titleOf(n.Attrs),
		CreatedBy:  n.CreatedBy,
		Confidence: n.Confidence,
	}); err != nil {
		e.logger.Error("workflow: node created notify", "node_id", n.ID, "error", err)
	}
	e.fireHooks("node_created", func(ctx context.Context, h EventHook) error {
		return h.OnNodeCreated(ctx, n)
	})
	return n, nil
}

// propose records the candidate for human review and announces it to the
// resolved approver. Returns the created proposal and the approver label
// used in the announcement.
func (e *Engine) propose(ctx context.Context, in BatchInput, role model.Role, c model.CandidateEntity, route Route) (model.Proposal, string, error) {
	approver := e.resolveApprover(ctx, role, route)

	p := model.Proposal{
		ProjectID:    in.ProjectID,
		ProposedBy:   in.ActorID,
		EntityType:   c.EntityType,
		ProposedData: nodeAttrs(c),
		AIConfidence: c.Confidence,
		AIReasoning:  c.Reasoning,
		Citations:    c.Citations,
		SourceType:   in.Source.Type,
		SourceID:     in.Source.ID,
	}
	if approver != nil {
		p.RequiresApprovalFrom = &approver.ID
	}

	created, err := e.db.CreateProposal(ctx, p)
	if err != nil {
		return model.Proposal{}, "", err
	}

	label := DefaultApproverLabel
	if approver != nil {
		label = approver.DisplayName
	}

	e.audit(ctx, storage.MutationAuditEntry{
		ProjectID:  in.ProjectID,
		ActorID:    in.ActorID,
		ActorRole:  role.RoleCode,
		Operation:  "create_proposal",
		EntityType: string(c.EntityType),
		EntityID:   created.ID.String(),
		Decision:   string(RoutePropose),
		AfterData:  created,
		Metadata: ctxutil.AuditMetadata(ctx, map[string]any{
			"rule":        route.Rule,
			"reason":      route.Reason,
			"source_type": in.Source.Type,
			"source_id":   in.Source.ID,
			"approver":    label,
		}),
	})
	if err := e.notifier.ProposalCreated(ctx, notify.ProposalEvent{
		ProposalID:   created.ID,
		ProjectID:    created.ProjectID,
		EntityType:   string(created.EntityType),
		Title:        titleOf(created.ProposedData),
		ProposedBy:   created.ProposedBy,
		Status:       string(created.Status),
		ApproverRole: label,
	}); err != nil {
		e.logger.Error("workflow: proposal created notify", "proposal_id", created.ID, "error", err)
	}
	e.fireHooks("proposal_created", func(ctx context.Context, h EventHook) error {
		return h.OnProposalCreated(ctx, created)
	})
	return created, label, nil
}

// resolveApprover picks who reviews this proposal: the rule-designated
// role when set and still active, else whatever the directory's strategy
// chain produces. A nil return means the proposal is unaddressed and the
// announcement falls back to DefaultApproverLabel.
func (e *Engine) resolveApprover(ctx context.Context, role model.Role, route Route) *model.Role {
	if route.ApproverRoleID != nil {
		designated, err := e.db.GetRole(ctx, *route.ApproverRoleID)
		switch {
		case err == nil && designated.Active:
			return &designated
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			e.logger.Warn("workflow: designated approver lookup failed",
				"role_id", *route.ApproverRoleID, "error", err)
		}
	}
	approver, err := e.dir.ApproverRole(ctx, role)
	if err != nil {
		e.logger.Warn("workflow: approver resolution failed", "role_id", role.ID, "error", err)
		return nil
	}
	return approver
}

// nodeAttrs flattens a candidate into the attribute payload stored on a
// node, or on a proposal as proposed_data. Provenance keys are stamped
// here so both routes persist identical payloads.
func nodeAttrs(c model.CandidateEntity) map[string]any {
	attrs := map[string]any{"title": strings.TrimSpace(c.Title)}
	if c.Description != "" {
		attrs["description"] = c.Description
	}
	if impact := c.EffectiveImpact(); impact != "" {
		attrs["impact"] = impact
	}
	if len(c.Tags) > 0 {
		attrs["tags"] = c.Tags
	}
	if len(c.MentionedUsers) > 0 {
		attrs["mentioned_users"] = c.MentionedUsers
	}
	if len(c.RelatedEntityIDs) > 0 {
		attrs["related_entity_ids"] = c.RelatedEntityIDs
	}
	if c.Deadline != nil {
		attrs["deadline"] = c.Deadline.UTC().Format(time.RFC3339)
	}
	if c.Owner != nil && *c.Owner != "" {
		attrs["owner"] = *c.Owner
	}

	attrs[model.AttrCreatedByAI] = true
	attrs[model.AttrAIConfidence] = c.Confidence
	if c.Reasoning != nil && *c.Reasoning != "" {
		attrs[model.AttrAIReasoning] = *c.Reasoning
	}
	return attrs
}

// evidenceRows builds one evidence row per citation. With no citations the
// candidate still gets a single row quoting its title, so every committed
// node keeps a provenance link back to its source. Entity references and
// ownership are bound later, inside the node transaction.
func evidenceRows(citations []string, fallbackQuote string, src model.Source, confidence float64) []model.Evidence {
	quotes := citations
	if len(quotes) == 0 {
		quotes = []string{fallbackQuote}
	}
	label := model.ConfidenceLabel(confidence)
	evs := make([]model.Evidence, len(quotes))
	for i, q := range quotes {
		evs[i] = model.Evidence{
			SourceType:       src.Type,
			SourceID:         src.ID,
			Quote:            q,
			Confidence:       label,
			ExtractionMethod: model.ExtractionAI,
		}
	}
	return evs
}

// titleOf extracts the display title from a stored attribute payload.
func titleOf(attrs map[string]any) string {
	t, _ := attrs["title"].(string)
	return t
}
