// Command seed provisions a demo project against a running Torii database:
// a three-role reporting chain, per-entity-type permissions, two user
// assignments, and a sample extraction batch pushed through the engine. It
// then approves the first pending proposal so every lifecycle path is
// visible in one run.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/seed
//
// Safe to run multiple times: each run creates a project under a fresh
// slug and leaves earlier runs untouched.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ashita-ai/torii"
)

func main() {
	ctx := context.Background()

	// Keep engine logs out of the demo output.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	app, err := torii.New(ctx, torii.WithLogger(quiet))
	if err != nil {
		log.Fatalf("new app: %v", err)
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	project, err := app.CreateProject(ctx, "Demo Project", fmt.Sprintf("demo-%d", time.Now().Unix()))
	if err != nil {
		log.Fatalf("create project: %v", err)
	}
	fmt.Printf("project %s (%s)\n", project.Slug, project.ID)

	lead, err := app.CreateRole(ctx, torii.Role{
		ProjectID:      project.ID,
		RoleCode:       "project_lead",
		DisplayName:    "Project Lead",
		AuthorityLevel: 5,
	})
	if err != nil {
		log.Fatalf("create role: %v", err)
	}
	techLead, err := app.CreateRole(ctx, torii.Role{
		ProjectID:      project.ID,
		RoleCode:       "tech_lead",
		DisplayName:    "Tech Lead",
		AuthorityLevel: 4,
		ReportsTo:      &lead.ID,
	})
	if err != nil {
		log.Fatalf("create role: %v", err)
	}
	engineer, err := app.CreateRole(ctx, torii.Role{
		ProjectID:      project.ID,
		RoleCode:       "engineer",
		DisplayName:    "Engineer",
		AuthorityLevel: 2,
		ReportsTo:      &techLead.ID,
	})
	if err != nil {
		log.Fatalf("create role: %v", err)
	}

	// Tech leads may auto-create above 0.8 confidence; engineers always
	// need review.
	perms := []struct {
		role    torii.Role
		auto    bool
		approve bool
	}{
		{techLead, true, false},
		{engineer, false, true},
	}
	for _, p := range perms {
		for _, entityType := range []string{torii.EntityDecision, torii.EntityRisk, torii.EntityTask, torii.EntityIssue} {
			if _, err := app.SetPermission(ctx, torii.RolePermission{
				RoleID:              p.role.ID,
				EntityType:          entityType,
				CanCreate:           true,
				CanRead:             true,
				AutoCreateEnabled:   p.auto,
				AutoCreateThreshold: 0.8,
				RequiresApproval:    p.approve,
			}); err != nil {
				log.Fatalf("set permission: %v", err)
			}
		}
	}

	assignments := []struct {
		user string
		role torii.Role
	}{
		{"ava@example.test", techLead},
		{"sam@example.test", engineer},
	}
	for _, a := range assignments {
		if _, err := app.AssignRole(ctx, torii.RoleAssignment{
			UserID:    a.user,
			ProjectID: project.ID,
			RoleID:    a.role.ID,
			IsPrimary: true,
		}); err != nil {
			log.Fatalf("assign role: %v", err)
		}
		fmt.Printf("assigned %s -> %s\n", a.user, a.role.RoleCode)
	}

	source := torii.Source{Type: "chat_message", ID: "msg_1042"}
	candidates := []torii.Candidate{
		{
			EntityType: torii.EntityRisk,
			Title:      "Payment provider sandbox differs from production quotas",
			Confidence: 0.85,
			Impact:     torii.ImpactHigh,
			Citations:  []string{"sandbox allows 50 rps but prod contract caps us at 10"},
		},
		{
			EntityType: torii.EntityDecision,
			Title:      "Adopt idempotency keys for all payment retries",
			Confidence: 0.97,
			Impact:     torii.ImpactCritical,
			Citations:  []string{"we agreed every retry must carry the original key"},
		},
		{
			EntityType: torii.EntityTask,
			Title:      "Verify webhook signatures in staging",
			Confidence: 0.55,
		},
	}

	for _, actor := range []string{"ava@example.test", "sam@example.test"} {
		res, err := app.ProcessExtractedEntities(ctx, project.ID, actor, source, candidates)
		if err != nil {
			log.Fatalf("process batch as %s: %v", actor, err)
		}
		fmt.Printf("\nbatch as %s: %d auto-created, %d proposed, %d skipped, %d errors\n",
			actor, res.Summary.AutoCreated, res.Summary.Proposals, res.Summary.Skipped, res.Summary.Errors)
		for _, out := range res.Results {
			fmt.Printf("  [%d] %-8s rule %d  %q (%s)\n", out.Index, out.Route, out.Rule, out.Title, out.Reason)
		}
	}

	pending, err := app.ListPendingProposals(ctx, project.ID, nil, 10, 0)
	if err != nil {
		log.Fatalf("list pending: %v", err)
	}
	if len(pending) > 0 {
		p, n, err := app.ApproveProposal(ctx, pending[0].ID, "dana@example.test", "looks right")
		if err != nil {
			log.Fatalf("approve: %v", err)
		}
		fmt.Printf("\napproved proposal %s -> node %s (%v)\n", p.ID, n.ID, n.Attrs["title"])
	}

	stats, err := app.GetProposalStats(ctx, project.ID)
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	fmt.Printf("\nproposals: %d pending, %d approved, %d rejected (avg confidence %.2f)\n",
		stats.Pending, stats.Approved, stats.Rejected, stats.AvgConfidence)
}
