package directory_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/torii/internal/directory"
	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/storage"
	"github.com/ashita-ai/torii/internal/testutil"
)

var (
	testDB  *storage.DB
	testDir *directory.Directory
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	ctx := context.Background()
	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		os.Exit(1)
	}

	testDir = directory.New(testDB, time.Second, testutil.TestLogger())
	defer testDir.Close()

	code := m.Run()
	testDB.Close(ctx)
	os.Exit(code)
}

func newProject(t *testing.T) model.Project {
	t.Helper()
	suffix := uuid.New().String()[:8]
	p, err := testDB.CreateProject(context.Background(), model.Project{
		Name: "Directory Test " + suffix,
		Slug: "dir-" + suffix,
	})
	require.NoError(t, err)
	return p
}

func newRole(t *testing.T, projectID uuid.UUID, code string, level int, reportsTo *uuid.UUID) model.Role {
	t.Helper()
	r, err := testDir.CreateRole(context.Background(), model.Role{
		ProjectID:      projectID,
		RoleCode:       code,
		DisplayName:    code,
		AuthorityLevel: level,
		ReportsTo:      reportsTo,
	})
	require.NoError(t, err)
	return r
}

func assign(t *testing.T, userID string, projectID, roleID uuid.UUID, primary bool) model.RoleAssignment {
	t.Helper()
	a, err := testDir.AssignRole(context.Background(), model.RoleAssignment{
		UserID:    userID,
		ProjectID: projectID,
		RoleID:    roleID,
		IsPrimary: primary,
	})
	require.NoError(t, err)
	return a
}

func TestEffectiveRoleHighestAuthorityWins(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	lead := newRole(t, p.ID, "tech_lead", 4, nil)
	dev := newRole(t, p.ID, "developer", 2, nil)

	userID := "user-" + uuid.New().String()[:8]
	assign(t, userID, p.ID, dev.ID, true)
	assign(t, userID, p.ID, lead.ID, false)

	got, err := testDir.EffectiveRole(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID, "secondary high-authority assignment outranks primary low one")
}

func TestEffectiveRoleTieBreaksOnPrimary(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	a := newRole(t, p.ID, "reviewer_a", 3, nil)
	b := newRole(t, p.ID, "reviewer_b", 3, nil)

	userID := "user-" + uuid.New().String()[:8]
	assign(t, userID, p.ID, a.ID, false)
	assign(t, userID, p.ID, b.ID, true)

	got, err := testDir.EffectiveRole(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID, "primary assignment wins on equal authority")
}

func TestEffectiveRoleNoAssignment(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)

	_, err := testDir.EffectiveRole(ctx, "stranger-"+uuid.New().String()[:8], p.ID)
	assert.ErrorIs(t, err, directory.ErrNoRole)
}

func TestEffectiveRoleCacheInvalidatedOnAssign(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	dev := newRole(t, p.ID, "developer", 2, nil)
	lead := newRole(t, p.ID, "tech_lead", 4, nil)

	userID := "user-" + uuid.New().String()[:8]
	assign(t, userID, p.ID, dev.ID, true)

	got, err := testDir.EffectiveRole(ctx, userID, p.ID)
	require.NoError(t, err)
	require.Equal(t, dev.ID, got.ID)

	// A new assignment through the directory must bust the cached result.
	assign(t, userID, p.ID, lead.ID, false)

	got, err = testDir.EffectiveRole(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID)
}

func TestEffectiveRoleDroppedAfterEndAssignment(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	dev := newRole(t, p.ID, "developer", 2, nil)

	userID := "user-" + uuid.New().String()[:8]
	a := assign(t, userID, p.ID, dev.ID, true)

	_, err := testDir.EffectiveRole(ctx, userID, p.ID)
	require.NoError(t, err)

	require.NoError(t, testDir.EndAssignment(ctx, a.ID))

	_, err = testDir.EffectiveRole(ctx, userID, p.ID)
	assert.ErrorIs(t, err, directory.ErrNoRole)
}

func TestPermissionFailClosedDefault(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	role := newRole(t, p.ID, "analyst", 3, nil)

	// No row configured: read-only default, approval required.
	perm, err := testDir.Permission(ctx, role.ID, model.EntityRisk)
	require.NoError(t, err)
	assert.False(t, perm.CanCreate)
	assert.True(t, perm.CanRead)
	assert.False(t, perm.AutoCreateEnabled)
	assert.True(t, perm.RequiresApproval)
	assert.Equal(t, model.DefaultAutoCreateThreshold, perm.AutoCreateThreshold)

	// Configured row is returned as-is.
	_, err = testDir.UpsertPermission(ctx, model.RolePermission{
		RoleID:              role.ID,
		EntityType:          model.EntityRisk,
		CanCreate:           true,
		CanRead:             true,
		AutoCreateEnabled:   true,
		AutoCreateThreshold: 0.8,
	})
	require.NoError(t, err)

	perm, err = testDir.Permission(ctx, role.ID, model.EntityRisk)
	require.NoError(t, err)
	assert.True(t, perm.CanCreate)
	assert.Equal(t, 0.8, perm.AutoCreateThreshold)
}

func TestApproverRoleReportsTo(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	lead := newRole(t, p.ID, "tech_lead", 4, nil)
	dev := newRole(t, p.ID, "developer", 2, &lead.ID)

	approver, err := testDir.ApproverRole(ctx, dev)
	require.NoError(t, err)
	require.NotNil(t, approver)
	assert.Equal(t, lead.ID, approver.ID)
}

func TestApproverRoleSkipsInactiveParent(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	lead := newRole(t, p.ID, "tech_lead", 4, nil)
	architect := newRole(t, p.ID, "architect", 3, nil)
	dev := newRole(t, p.ID, "developer", 2, &lead.ID)

	require.NoError(t, testDir.DeactivateRole(ctx, lead.ID))

	// reports_to points at a deactivated role; resolution falls through to
	// the nearest higher authority.
	approver, err := testDir.ApproverRole(ctx, dev)
	require.NoError(t, err)
	require.NotNil(t, approver)
	assert.Equal(t, architect.ID, approver.ID)
}

func TestApproverRoleNearestHigherAuthority(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	newRole(t, p.ID, "cto", 5, nil)
	architect := newRole(t, p.ID, "architect", 4, nil)
	dev := newRole(t, p.ID, "developer", 2, nil)

	// No reports_to edge: nearest (lowest) strictly-higher authority wins,
	// not the highest.
	approver, err := testDir.ApproverRole(ctx, dev)
	require.NoError(t, err)
	require.NotNil(t, approver)
	assert.Equal(t, architect.ID, approver.ID)
}

func TestApproverRoleNone(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	cto := newRole(t, p.ID, "cto", 5, nil)

	approver, err := testDir.ApproverRole(ctx, cto)
	require.NoError(t, err)
	assert.Nil(t, approver, "top of the hierarchy has no approver")
}
