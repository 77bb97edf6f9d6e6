// Package workflow routes extracted candidate entities into the knowledge
// graph. The routing procedure is a fixed-order rule chain: high-trust
// extractions become graph nodes directly, everything else becomes a
// proposal for human review. The chain never errors; when no rule matches,
// the candidate falls through to review.
package workflow

import (
	"github.com/google/uuid"

	"github.com/ashita-ai/torii/internal/model"
)

// RouteKind is the terminal outcome of the routing rule chain.
type RouteKind string

const (
	RouteAutoCreate RouteKind = "auto_create"
	RoutePropose    RouteKind = "propose"
	RouteSkip       RouteKind = "skip"
)

// FallbackThreshold is the auto-create confidence bar used when neither the
// project nor the role permission configures one. Missing configuration
// degrades to review-heavy routing; it is never fatal.
const FallbackThreshold = 0.8

// mediumConfidence is the floor below which a candidate always goes to
// review, regardless of authority or permission flags.
const mediumConfidence = 0.7

// autoCreateMinAuthority is the minimum directory authority level that may
// write to the graph without review.
const autoCreateMinAuthority = 3

// DecisionInput carries everything the rule chain reads. Impact must
// already be normalized to lower case (CandidateEntity.EffectiveImpact
// does this).
type DecisionInput struct {
	Authority  int
	Confidence float64
	Impact     string
	Threshold  float64
	Permission model.RolePermission
}

// Route is the routing verdict for one candidate. Rule records which chain
// position matched (1-6) for logs and metrics. ApproverRoleID is set only
// when the matched rule designates a specific reviewer; callers fall back
// to directory resolution when it is nil.
type Route struct {
	Kind           RouteKind
	Rule           int
	Reason         string
	ApproverRoleID *uuid.UUID
}

// Decide runs the routing rule chain for one candidate. It is a pure
// function: same input, same route.
//
// Rules, in evaluation order (first match wins):
//  1. Critical impact below top authority: propose.
//  2. Authority below the auto-create floor: propose.
//  3. Confidence at or above threshold with sufficient authority: create.
//  4. Medium confidence with auto-create permission, non-critical: create.
//  5. Confidence below the medium floor: propose.
//  6. Default: propose.
func Decide(in DecisionInput) Route {
	// Rule 1: Critical-impact candidates need top authority. Anyone else
	// routes to review no matter how confident the extraction is.
	if in.Impact == model.ImpactCritical && in.Authority < model.MaxAuthorityLevel {
		return Route{
			Kind:           RoutePropose,
			Rule:           1,
			Reason:         "critical impact requires top authority",
			ApproverRoleID: in.Permission.ApprovalFromRole,
		}
	}

	// Rule 2: Below the authority floor nothing is written directly.
	if in.Authority < autoCreateMinAuthority {
		return Route{
			Kind:           RoutePropose,
			Rule:           2,
			Reason:         "insufficient authority for direct writes",
			ApproverRoleID: in.Permission.ApprovalFromRole,
		}
	}

	// Rule 3: High confidence plus sufficient authority writes directly.
	// The authority check is redundant after rule 2 but kept explicit so
	// the rule reads standalone.
	if in.Confidence >= in.Threshold && in.Authority >= autoCreateMinAuthority {
		return Route{
			Kind:   RouteAutoCreate,
			Rule:   3,
			Reason: "confidence at or above auto-create threshold",
		}
	}

	// Rule 4: Medium confidence can still write directly when the role's
	// permission opts in, except for critical impact.
	if in.Confidence >= mediumConfidence && in.Permission.AutoCreateEnabled && in.Impact != model.ImpactCritical {
		return Route{
			Kind:   RouteAutoCreate,
			Rule:   4,
			Reason: "permission allows auto-create at medium confidence",
		}
	}

	// Rule 5: Low confidence always goes to review.
	if in.Confidence < mediumConfidence {
		return Route{
			Kind:           RoutePropose,
			Rule:           5,
			Reason:         "confidence below review floor",
			ApproverRoleID: in.Permission.ApprovalFromRole,
		}
	}

	// Rule 6: Nothing matched; fail toward review.
	return Route{
		Kind:           RoutePropose,
		Rule:           6,
		Reason:         "approval required",
		ApproverRoleID: in.Permission.ApprovalFromRole,
	}
}

// ResolveThreshold picks the auto-create confidence bar for one candidate:
// the project default when configured, else the role permission's
// threshold, else FallbackThreshold.
func ResolveThreshold(project model.Project, perm model.RolePermission) float64 {
	if project.DefaultAutoCreateThreshold != nil {
		return *project.DefaultAutoCreateThreshold
	}
	if perm.AutoCreateThreshold > 0 {
		return perm.AutoCreateThreshold
	}
	return FallbackThreshold
}
