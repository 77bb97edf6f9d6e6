package workflow

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ashita-ai/torii/internal/model"
)

func TestDecide(t *testing.T) {
	approver := uuid.New()

	tests := []struct {
		name     string
		in       DecisionInput
		wantKind RouteKind
		wantRule int
	}{
		{
			name: "high confidence with authority auto-creates",
			in: DecisionInput{
				Authority:  4,
				Confidence: 0.85,
				Impact:     model.ImpactHigh,
				Threshold:  0.8,
			},
			wantKind: RouteAutoCreate,
			wantRule: 3,
		},
		{
			name: "same candidate below authority floor proposes",
			in: DecisionInput{
				Authority:  2,
				Confidence: 0.85,
				Impact:     model.ImpactHigh,
				Threshold:  0.8,
			},
			wantKind: RoutePropose,
			wantRule: 2,
		},
		{
			name: "critical impact outranks any confidence",
			in: DecisionInput{
				Authority:  4,
				Confidence: 0.99,
				Impact:     model.ImpactCritical,
				Threshold:  0.8,
				Permission: model.RolePermission{AutoCreateEnabled: true},
			},
			wantKind: RoutePropose,
			wantRule: 1,
		},
		{
			name: "critical impact checked before authority floor",
			in: DecisionInput{
				Authority:  1,
				Confidence: 0.99,
				Impact:     model.ImpactCritical,
				Threshold:  0.8,
			},
			wantKind: RoutePropose,
			wantRule: 1,
		},
		{
			name: "top authority may auto-create critical at high confidence",
			in: DecisionInput{
				Authority:  5,
				Confidence: 0.95,
				Impact:     model.ImpactCritical,
				Threshold:  0.9,
			},
			wantKind: RouteAutoCreate,
			wantRule: 3,
		},
		{
			name: "critical never auto-creates on the permission rule",
			in: DecisionInput{
				Authority:  5,
				Confidence: 0.75,
				Impact:     model.ImpactCritical,
				Threshold:  0.9,
				Permission: model.RolePermission{AutoCreateEnabled: true},
			},
			wantKind: RoutePropose,
			wantRule: 6,
		},
		{
			name: "confidence exactly at threshold auto-creates",
			in: DecisionInput{
				Authority:  3,
				Confidence: 0.8,
				Impact:     model.ImpactMedium,
				Threshold:  0.8,
			},
			wantKind: RouteAutoCreate,
			wantRule: 3,
		},
		{
			name: "permission opt-in auto-creates at medium confidence",
			in: DecisionInput{
				Authority:  3,
				Confidence: 0.75,
				Impact:     model.ImpactHigh,
				Threshold:  0.9,
				Permission: model.RolePermission{AutoCreateEnabled: true},
			},
			wantKind: RouteAutoCreate,
			wantRule: 4,
		},
		{
			name: "medium confidence without opt-in falls to default",
			in: DecisionInput{
				Authority:  3,
				Confidence: 0.75,
				Impact:     model.ImpactHigh,
				Threshold:  0.9,
			},
			wantKind: RoutePropose,
			wantRule: 6,
		},
		{
			name: "low confidence proposes",
			in: DecisionInput{
				Authority:  4,
				Confidence: 0.5,
				Impact:     model.ImpactHigh,
				Threshold:  0.8,
			},
			wantKind: RoutePropose,
			wantRule: 5,
		},
		{
			name: "low confidence proposes even with permission opt-in",
			in: DecisionInput{
				Authority:  4,
				Confidence: 0.69,
				Impact:     model.ImpactLow,
				Threshold:  0.8,
				Permission: model.RolePermission{AutoCreateEnabled: true},
			},
			wantKind: RoutePropose,
			wantRule: 5,
		},
		{
			name: "unset impact routes on authority and confidence alone",
			in: DecisionInput{
				Authority:  1,
				Confidence: 0.95,
				Threshold:  0.8,
			},
			wantKind: RoutePropose,
			wantRule: 2,
		},
		{
			name: "designated approver rides along on propose",
			in: DecisionInput{
				Authority:  2,
				Confidence: 0.85,
				Impact:     model.ImpactHigh,
				Threshold:  0.8,
				Permission: model.RolePermission{ApprovalFromRole: &approver},
			},
			wantKind: RoutePropose,
			wantRule: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.in)
			if got.Kind != tt.wantKind {
				t.Errorf("Decide() kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.Rule != tt.wantRule {
				t.Errorf("Decide() rule = %d, want %d", got.Rule, tt.wantRule)
			}
			if got.Reason == "" {
				t.Error("Decide() returned empty reason; every route must explain itself")
			}
			if got.Kind == RouteAutoCreate && got.ApproverRoleID != nil {
				t.Error("Decide() set an approver on an auto-create route")
			}
			if tt.in.Permission.ApprovalFromRole != nil && got.Kind == RoutePropose {
				if got.ApproverRoleID == nil || *got.ApproverRoleID != *tt.in.Permission.ApprovalFromRole {
					t.Errorf("Decide() approver = %v, want %v", got.ApproverRoleID, tt.in.Permission.ApprovalFromRole)
				}
			}
		})
	}
}

func TestDecideNeverSkips(t *testing.T) {
	// Skip verdicts come from upstream validation (no role, malformed
	// candidate), never from the rule chain itself.
	for authority := 1; authority <= 5; authority++ {
		for _, conf := range []float64{0, 0.3, 0.7, 0.8, 1} {
			for _, impact := range []string{"", model.ImpactLow, model.ImpactCritical} {
				got := Decide(DecisionInput{
					Authority:  authority,
					Confidence: conf,
					Impact:     impact,
					Threshold:  0.8,
				})
				if got.Kind == RouteSkip {
					t.Fatalf("Decide(authority=%d, conf=%.2f, impact=%q) = skip", authority, conf, impact)
				}
			}
		}
	}
}

func TestResolveThreshold(t *testing.T) {
	ptrf := func(f float64) *float64 { return &f }

	tests := []struct {
		name    string
		project model.Project
		perm    model.RolePermission
		want    float64
	}{
		{
			name:    "project default wins",
			project: model.Project{DefaultAutoCreateThreshold: ptrf(0.95)},
			perm:    model.RolePermission{AutoCreateThreshold: 0.9},
			want:    0.95,
		},
		{
			name:    "explicit zero project default is honored",
			project: model.Project{DefaultAutoCreateThreshold: ptrf(0)},
			perm:    model.RolePermission{AutoCreateThreshold: 0.9},
			want:    0,
		},
		{
			name: "permission threshold when project is silent",
			perm: model.RolePermission{AutoCreateThreshold: 0.9},
			want: 0.9,
		},
		{
			name: "fallback when nothing is configured",
			want: FallbackThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveThreshold(tt.project, tt.perm); got != tt.want {
				t.Errorf("ResolveThreshold() = %v, want %v", got, tt.want)
			}
		})
	}
}
