package storage_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/storage"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "torii",
			"POSTGRES_PASSWORD": "torii",
			"POSTGRES_DB":       "torii",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://torii:torii@%s:%s/torii?sslmode=disable", host, port.Port())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	testDB, err = storage.New(ctx, dsn, "", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.RunMigrations(ctx, os.DirFS("../../migrations")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createTestProject(t *testing.T) model.Project {
	t.Helper()
	suffix := uuid.New().String()[:8]
	p, err := testDB.CreateProject(context.Background(), model.Project{
		Name: "Test Project " + suffix,
		Slug: "test-" + suffix,
	})
	require.NoError(t, err)
	return p
}

func createTestRole(t *testing.T, projectID uuid.UUID, code string, level int, reportsTo *uuid.UUID) model.Role {
	t.Helper()
	r, err := testDB.CreateRole(context.Background(), model.Role{
		ProjectID:      projectID,
		RoleCode:       code,
		DisplayName:    code,
		AuthorityLevel: level,
		ReportsTo:      reportsTo,
	})
	require.NoError(t, err)
	return r
}

func TestCreateAndGetProject(t *testing.T) {
	ctx := context.Background()

	p := createTestProject(t)

	got, err := testDB.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Slug, got.Slug)
	assert.Nil(t, got.DefaultAutoCreateThreshold)

	bySlug, err := testDB.GetProjectBySlug(ctx, p.Slug)
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySlug.ID)

	threshold := 0.85
	err = testDB.SetProjectThreshold(ctx, p.ID, &threshold)
	require.NoError(t, err)

	got, err = testDB.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DefaultAutoCreateThreshold)
	assert.Equal(t, 0.85, *got.DefaultAutoCreateThreshold)

	// Clearing falls back to per-permission thresholds.
	err = testDB.SetProjectThreshold(ctx, p.ID, nil)
	require.NoError(t, err)

	got, err = testDB.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DefaultAutoCreateThreshold)

	_, err = testDB.GetProject(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	lead := createTestRole(t, p.ID, "tech_lead", 4, nil)
	dev := createTestRole(t, p.ID, "developer", 2, &lead.ID)

	got, err := testDB.GetRole(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, "developer", got.RoleCode)
	assert.Equal(t, 2, got.AuthorityLevel)
	require.NotNil(t, got.ReportsTo)
	assert.Equal(t, lead.ID, *got.ReportsTo)

	byCode, err := testDB.GetRoleByCode(ctx, p.ID, "tech_lead")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, byCode.ID)

	roles, err := testDB.ListActiveRoles(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "tech_lead", roles[0].RoleCode, "highest authority first")

	err = testDB.DeactivateRole(ctx, dev.ID)
	require.NoError(t, err)

	roles, err = testDB.ListActiveRoles(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	// Double deactivation is a not-found.
	err = testDB.DeactivateRole(ctx, dev.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoleReportsToChecks(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	a := createTestRole(t, p.ID, "role_a", 3, nil)
	b := createTestRole(t, p.ID, "role_b", 2, &a.ID)

	// Pointing a back at b would create a cycle.
	a.ReportsTo = &b.ID
	err := testDB.UpdateRole(ctx, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	// Self-reference is rejected outright.
	b.ReportsTo = &b.ID
	err = testDB.UpdateRole(ctx, b)
	require.Error(t, err)

	// Parent must exist.
	missing := uuid.New()
	_, err = testDB.CreateRole(ctx, model.Role{
		ProjectID: p.ID, RoleCode: "orphan", DisplayName: "Orphan",
		AuthorityLevel: 1, ReportsTo: &missing,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Parent must live in the same project.
	other := createTestProject(t)
	foreign := createTestRole(t, other.ID, "foreign_lead", 4, nil)
	_, err = testDB.CreateRole(ctx, model.Role{
		ProjectID: p.ID, RoleCode: "cross_project", DisplayName: "Cross",
		AuthorityLevel: 1, ReportsTo: &foreign.ID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different project")
}

func TestNearestSuperiorRole(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	createTestRole(t, p.ID, "cto", 5, nil)
	createTestRole(t, p.ID, "architect", 4, nil)
	createTestRole(t, p.ID, "tech_lead", 4, nil)
	createTestRole(t, p.ID, "developer", 2, nil)

	// Lowest authority above level 2; alphabetical among the two level-4 roles.
	sup, err := testDB.NearestSuperiorRole(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "architect", sup.RoleCode)

	sup, err = testDB.NearestSuperiorRole(ctx, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, "cto", sup.RoleCode)

	// Nothing above the top.
	_, err = testDB.NearestSuperiorRole(ctx, p.ID, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertAndGetPermission(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	role := createTestRole(t, p.ID, "analyst", 3, nil)

	perm, err := testDB.UpsertPermission(ctx, model.RolePermission{
		RoleID:            role.ID,
		EntityType:        model.EntityDecision,
		CanCreate:         true,
		CanRead:           true,
		AutoCreateEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAutoCreateThreshold, perm.AutoCreateThreshold, "zero threshold gets the default")

	// Second upsert replaces in place.
	perm.AutoCreateThreshold = 0.75
	perm.RequiresApproval = true
	_, err = testDB.UpsertPermission(ctx, perm)
	require.NoError(t, err)

	got, err := testDB.GetPermission(ctx, role.ID, model.EntityDecision)
	require.NoError(t, err)
	assert.Equal(t, 0.75, got.AutoCreateThreshold)
	assert.True(t, got.RequiresApproval)

	_, err = testDB.GetPermission(ctx, role.ID, model.EntityRisk)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	perms, err := testDB.ListPermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
}

func TestActiveAssignments(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	lead := createTestRole(t, p.ID, "tech_lead", 4, nil)
	dev := createTestRole(t, p.ID, "developer", 2, nil)

	userID := "user-" + uuid.New().String()[:8]
	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	expired := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	// Current primary developer assignment.
	_, err := testDB.AssignRole(ctx, model.RoleAssignment{
		UserID: userID, ProjectID: p.ID, RoleID: dev.ID, IsPrimary: true,
	})
	require.NoError(t, err)

	// Current secondary lead assignment. Higher authority wins resolution.
	_, err = testDB.AssignRole(ctx, model.RoleAssignment{
		UserID: userID, ProjectID: p.ID, RoleID: lead.ID,
	})
	require.NoError(t, err)

	// Expired window, must not resolve.
	_, err = testDB.AssignRole(ctx, model.RoleAssignment{
		UserID: userID, ProjectID: p.ID, RoleID: lead.ID,
		ValidFrom: &past, ValidUntil: &expired,
	})
	require.NoError(t, err)

	// Not yet valid, must not resolve.
	_, err = testDB.AssignRole(ctx, model.RoleAssignment{
		UserID: userID, ProjectID: p.ID, RoleID: lead.ID,
		ValidFrom: &future,
	})
	require.NoError(t, err)

	active, err := testDB.ActiveAssignments(ctx, userID, p.ID, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.NotNil(t, active[0].Role)
	assert.Equal(t, "tech_lead", active[0].Role.RoleCode, "authority outranks primary flag")
	assert.Equal(t, "developer", active[1].Role.RoleCode)

	all, err := testDB.ListAssignments(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestEndAssignment(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	role := createTestRole(t, p.ID, "developer", 2, nil)

	userID := "end-" + uuid.New().String()[:8]
	a, err := testDB.AssignRole(ctx, model.RoleAssignment{
		UserID: userID, ProjectID: p.ID, RoleID: role.ID,
	})
	require.NoError(t, err)

	err = testDB.EndAssignment(ctx, a.ID)
	require.NoError(t, err)

	active, err := testDB.ActiveAssignments(ctx, userID, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, active)

	// Ending an already-ended assignment is a not-found.
	err = testDB.EndAssignment(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeactivatedRoleStopsResolving(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	role := createTestRole(t, p.ID, "developer", 2, nil)

	userID := "deact-" + uuid.New().String()[:8]
	_, err := testDB.AssignRole(ctx, model.RoleAssignment{
		UserID: userID, ProjectID: p.ID, RoleID: role.ID,
	})
	require.NoError(t, err)

	require.NoError(t, testDB.DeactivateRole(ctx, role.ID))

	active, err := testDB.ActiveAssignments(ctx, userID, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateNodeTx(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	node, evs, err := testDB.CreateNodeTx(ctx, storage.CreateNodeParams{
		Node: model.Node{
			ProjectID:  p.ID,
			NodeType:   model.EntityDecision,
			Attrs:      map[string]any{"title": "Adopt event sourcing"},
			Confidence: 0.95,
			CreatedBy:  "user-alice",
		},
		Evidence: []model.Evidence{
			{SourceType: model.SourceChatMessage, SourceID: "msg-1", Quote: "we should adopt event sourcing"},
			{SourceType: model.SourceChatMessage, SourceID: "msg-2", Quote: "agreed, let's do it"},
		},
	})
	require.NoError(t, err)
	require.Len(t, evs, 2)

	got, err := testDB.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Adopt event sourcing", got.Attrs["title"])
	assert.Equal(t, 0.95, got.Confidence)

	stored, err := testDB.GetEvidenceByNode(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, ev := range stored {
		assert.Equal(t, model.EntityKindNode, ev.Entity.Kind)
		require.NotNil(t, ev.Entity.NodeID)
		assert.Equal(t, node.ID, *ev.Entity.NodeID)
		assert.Equal(t, "user-alice", ev.CreatedBy, "evidence inherits the node creator")
	}

	count, err := testDB.CountNodes(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateEvidenceRowRef(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	ev, err := testDB.CreateEvidence(ctx, model.Evidence{
		ProjectID:  p.ID,
		Entity:     model.RowRef(4242),
		EntityType: "task",
		SourceType: model.SourceEmail,
		SourceID:   "email-77",
		Quote:      "please finish the migration by Friday",
		CreatedBy:  "user-bob",
	})
	require.NoError(t, err)
	assert.Equal(t, model.EntityKindRow, ev.Entity.Kind)

	got, err := testDB.GetEvidenceByRow(ctx, 4242)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Entity.RowID)
	assert.Equal(t, int64(4242), *got[0].Entity.RowID)
	assert.Nil(t, got[0].Entity.NodeID)

	// A reference pointing at both id spaces never persists.
	bad := model.Evidence{
		ProjectID:  p.ID,
		Entity:     model.EntityRef{Kind: model.EntityKindRow},
		SourceType: model.SourceEmail,
		SourceID:   "email-78",
		Quote:      "dangling",
		CreatedBy:  "user-bob",
	}
	_, err = testDB.CreateEvidence(ctx, bad)
	require.Error(t, err)
}

func TestEvidenceCoverageStats(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	for i := 0; i < 3; i++ {
		_, _, err := testDB.CreateNodeTx(ctx, storage.CreateNodeParams{
			Node: model.Node{
				ProjectID: p.ID, NodeType: model.EntityTask,
				Attrs: map[string]any{"n": i}, CreatedBy: "user-carol",
			},
			Evidence: []model.Evidence{
				{SourceType: model.SourceTranscriptChunk, SourceID: fmt.Sprintf("t-%d", i), Quote: "quote"},
			},
		})
		require.NoError(t, err)
	}

	stats, err := testDB.GetEvidenceCoverageStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalNodes)
	assert.Equal(t, 3, stats.WithEvidence)
	assert.Equal(t, 0, stats.WithoutEvidenceCount)
	assert.Equal(t, float64(100), stats.CoveragePercent)
}

func TestCreateAndGetProposal(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	reasoning := "low confidence extraction"
	prop, err := testDB.CreateProposal(ctx, model.Proposal{
		ProjectID:    p.ID,
		ProposedBy:   "user-dave",
		EntityType:   model.EntityRisk,
		ProposedData: map[string]any{"title": "Vendor lock-in risk"},
		AIConfidence: 0.55,
		AIReasoning:  &reasoning,
		Citations:    []string{"msg-9"},
		SourceType:   model.SourceChatMessage,
		SourceID:     "msg-9",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPending, prop.Status)

	got, err := testDB.GetProposal(ctx, prop.ID)
	require.NoError(t, err)
	assert.Equal(t, "Vendor lock-in risk", got.ProposedData["title"])
	assert.Equal(t, 0.55, got.AIConfidence)
	assert.Equal(t, []string{"msg-9"}, got.Citations)
	assert.Nil(t, got.CreatedNodeID)

	_, err = testDB.GetProposal(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApproveProposalTx(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	prop, err := testDB.CreateProposal(ctx, model.Proposal{
		ProjectID:    p.ID,
		ProposedBy:   "user-erin",
		EntityType:   model.EntityDecision,
		ProposedData: map[string]any{"title": "Use Postgres"},
		AIConfidence: 0.65,
		SourceType:   model.SourceTranscriptChunk,
		SourceID:     "chunk-3",
	})
	require.NoError(t, err)

	approved, node, evs, err := testDB.ApproveProposalTx(ctx, storage.ApproveProposalParams{
		ProposalID: prop.ID,
		ReviewedBy: "user-frank",
		Node: model.Node{
			ProjectID:  p.ID,
			NodeType:   model.EntityDecision,
			Attrs:      map[string]any{"title": "Use Postgres"},
			Confidence: 0.65,
			CreatedBy:  "user-erin",
		},
		Evidence: []model.Evidence{
			{SourceType: model.SourceTranscriptChunk, SourceID: "chunk-3", Quote: "postgres it is"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "user-frank", *approved.ReviewedBy)
	require.NotNil(t, approved.CreatedNodeID)
	assert.Equal(t, node.ID, *approved.CreatedNodeID)
	require.Len(t, evs, 1)

	// Node and evidence landed.
	gotNode, err := testDB.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Use Postgres", gotNode.Attrs["title"])

	gotEvs, err := testDB.GetEvidenceByNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Len(t, gotEvs, 1)

	// A second resolution of any kind conflicts.
	_, _, _, err = testDB.ApproveProposalTx(ctx, storage.ApproveProposalParams{
		ProposalID: prop.ID,
		ReviewedBy: "user-grace",
		Node:       model.Node{ProjectID: p.ID, NodeType: model.EntityDecision, CreatedBy: "user-erin"},
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = testDB.RejectProposal(ctx, prop.ID, "user-grace", nil)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Conflicted attempts wrote nothing extra.
	count, err := testDB.CountNodes(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRejectProposal(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	prop, err := testDB.CreateProposal(ctx, model.Proposal{
		ProjectID:    p.ID,
		ProposedBy:   "user-henry",
		EntityType:   model.EntityIssue,
		ProposedData: map[string]any{"title": "Flaky deploys"},
		AIConfidence: 0.4,
	})
	require.NoError(t, err)

	notes := "duplicate of an existing issue"
	rejected, err := testDB.RejectProposal(ctx, prop.ID, "user-iris", &notes)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNotes)
	assert.Equal(t, notes, *rejected.ReviewNotes)
	assert.Nil(t, rejected.CreatedNodeID, "rejection never creates a node")

	// Approving after rejection conflicts, and the error names the state.
	_, _, _, err = testDB.ApproveProposalTx(ctx, storage.ApproveProposalParams{
		ProposalID: prop.ID,
		ReviewedBy: "user-iris",
		Node:       model.Node{ProjectID: p.ID, NodeType: model.EntityIssue, CreatedBy: "user-henry"},
	})
	require.ErrorIs(t, err, storage.ErrConflict)
	assert.Contains(t, err.Error(), "rejected")

	_, err = testDB.RejectProposal(ctx, uuid.New(), "user-iris", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPendingProposals(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	approver := createTestRole(t, p.ID, "tech_lead", 4, nil)

	for i := 0; i < 3; i++ {
		_, err := testDB.CreateProposal(ctx, model.Proposal{
			ProjectID:    p.ID,
			ProposedBy:   "user-jane",
			EntityType:   model.EntityTask,
			ProposedData: map[string]any{"title": fmt.Sprintf("task %d", i)},
			AIConfidence: 0.5,
		})
		require.NoError(t, err)
	}
	withApprover, err := testDB.CreateProposal(ctx, model.Proposal{
		ProjectID:            p.ID,
		ProposedBy:           "user-jane",
		EntityType:           model.EntityDecision,
		ProposedData:         map[string]any{"title": "critical call"},
		AIConfidence:         0.9,
		RequiresApprovalFrom: &approver.ID,
	})
	require.NoError(t, err)

	all, err := testDB.ListPendingProposals(ctx, p.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	filtered, err := testDB.ListPendingProposals(ctx, p.ID, &approver.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, withApprover.ID, filtered[0].ID)
	require.NotNil(t, filtered[0].ApproverRole)
	assert.Equal(t, "tech_lead", filtered[0].ApproverRole.RoleCode)

	// Resolved proposals drop out of the pending list.
	_, err = testDB.RejectProposal(ctx, all[0].ID, "user-kate", nil)
	require.NoError(t, err)

	all, err = testDB.ListPendingProposals(ctx, p.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetProposalStats(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	confidences := []float64{0.5, 0.7, 0.9}
	var props []model.Proposal
	for _, c := range confidences {
		prop, err := testDB.CreateProposal(ctx, model.Proposal{
			ProjectID:    p.ID,
			ProposedBy:   "user-liam",
			EntityType:   model.EntityDecision,
			ProposedData: map[string]any{},
			AIConfidence: c,
		})
		require.NoError(t, err)
		props = append(props, prop)
	}

	_, _, _, err := testDB.ApproveProposalTx(ctx, storage.ApproveProposalParams{
		ProposalID: props[0].ID,
		ReviewedBy: "user-mona",
		Node:       model.Node{ProjectID: p.ID, NodeType: model.EntityDecision, CreatedBy: "user-liam"},
	})
	require.NoError(t, err)
	_, err = testDB.RejectProposal(ctx, props[1].ID, "user-mona", nil)
	require.NoError(t, err)

	stats, err := testDB.GetProposalStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 3, stats.Total)
	assert.InDelta(t, 0.7, stats.AvgConfidence, 1e-9)

	// Empty project: all zeros, average included.
	empty := createTestProject(t)
	stats, err = testDB.GetProposalStats(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, float64(0), stats.AvgConfidence)
}

func TestInsertMutationAudit(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)

	err := testDB.InsertMutationAudit(ctx, storage.MutationAuditEntry{
		ProjectID:  p.ID,
		ActorID:    "user-nina",
		ActorRole:  "tech_lead",
		Operation:  "process_entities",
		EntityType: "decision",
		EntityID:   uuid.New().String(),
		Decision:   "auto_create",
		AfterData:  map[string]any{"title": "audited"},
		Metadata:   map[string]any{"source_type": "chat_message"},
	})
	require.NoError(t, err)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()

	// Can only test Notify (sending), not Listen/WaitForNotification
	// since we didn't configure a notify connection in the test setup.
	err := testDB.Notify(ctx, storage.ChannelNodes, `{"test": true}`)
	require.NoError(t, err)
}

func TestErrConflictDistinctFromNotFound(t *testing.T) {
	assert.False(t, errors.Is(storage.ErrConflict, storage.ErrNotFound))
}
