// Package torii is the public API for embedding the Torii ingestion gate.
//
// Torii sits between LLM extraction and a project's knowledge graph: every
// extracted candidate entity is routed to an automatic graph write, a
// human-review proposal, or a skip, according to the acting user's role
// and authority in the project. Embedding consumers construct an App and
// feed it extraction batches and review verdicts:
//
//	app, err := torii.New(ctx,
//	    torii.WithVersion(version),
//	    torii.WithLogger(logger),
//	    torii.WithEventHook(myHook{}),
//	)
//	if err != nil { ... }
//	res, err := app.ProcessExtractedEntities(ctx, projectID, "ava@corp.test",
//	    torii.Source{Type: "chat_message", ID: "msg_1042"}, candidates)
//
// The import graph enforces a strict no-cycle rule: torii (root) imports
// internal/*, but internal/* never imports torii (root). Public types
// (Candidate, Proposal, etc.) are standalone structs with no internal
// imports; conversion helpers (toPublicProposal, fromPublicCandidate) live
// here because this is the only file that sees both sides of the boundary.
package torii

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ashita-ai/torii/internal/config"
	"github.com/ashita-ai/torii/internal/directory"
	"github.com/ashita-ai/torii/internal/model"
	"github.com/ashita-ai/torii/internal/notify"
	"github.com/ashita-ai/torii/internal/ratelimit"
	"github.com/ashita-ai/torii/internal/storage"
	"github.com/ashita-ai/torii/internal/telemetry"
	"github.com/ashita-ai/torii/internal/workflow"
	"github.com/ashita-ai/torii/migrations"
)

// Sentinel errors returned by App methods. Test with errors.Is.
var (
	// ErrNotFound reports that the requested proposal, node, role,
	// assignment, or project does not exist.
	ErrNotFound = errors.New("torii: not found")

	// ErrConflict reports a review race: the proposal was already approved
	// or rejected by someone else. Nothing was mutated.
	ErrConflict = errors.New("torii: proposal already reviewed")

	// ErrRateLimited reports that the actor is over their batch budget.
	// No candidate in the batch was processed.
	ErrRateLimited = errors.New("torii: rate limited")
)

// App is the Torii engine lifecycle. Construct with New(), optionally run
// the notification relay with Run(). App has no public fields; use New()
// options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	dir          *directory.Directory
	engine       *workflow.Engine
	broker       *notify.Broker // nil when no notify connection
	redisLimiter *ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string

	mu   sync.Mutex
	subs map[<-chan Notification]chan notify.Notification
}

// New initialises the Torii engine. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready App. It does NOT
// start any goroutines; call Run() for the notification relay, or skip it
// when embedding purely for the API methods.
func New(ctx context.Context, opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}
	if o.batchLimit > 0 {
		cfg.BatchRateLimit = o.batchLimit
	}
	if o.batchWindow > 0 {
		cfg.BatchRateWindow = o.batchWindow
	}
	if o.otelEndpoint != "" {
		cfg.OTELEndpoint = o.otelEndpoint
		cfg.OTELInsecure = o.otelInsecure
	}
	if o.skipMigrations {
		cfg.SkipMigrations = true
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("torii starting", "version", version)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if cfg.OTELEndpoint == "" {
		logger.Info("telemetry: disabled (no OTEL_EXPORTER_OTLP_ENDPOINT)")
	}

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run embedded migrations.
	if cfg.SkipMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Run extra migrations after the embedded ones.
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(ctx, extraFS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Verify critical tables exist after migration.
	var schemaOK bool
	if err := db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'kg_nodes')`,
	).Scan(&schemaOK); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("critical table 'kg_nodes' does not exist after migration; run migrations or remove WithoutMigrations()")
	}

	// Role directory with its read-through cache.
	dir := directory.New(db, cfg.RoleCacheTTL, logger)

	// Batch admission limiter: external override, then Redis, then unlimited.
	var limiter workflow.Limiter
	var redisLimiter *ratelimit.Limiter
	switch {
	case o.rateLimiter != nil:
		limiter = &rateLimiterAdapter{rl: o.rateLimiter, logger: logger}
		logger.Info("rate limiting: external limiter")
	case cfg.RedisURL != "":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			dir.Close()
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisLimiter = ratelimit.New(redis.NewClient(redisOpts), logger)
		limiter = workflow.NewSlidingWindowLimiter(redisLimiter, cfg.BatchRateLimit, cfg.BatchRateWindow)
		logger.Info("rate limiting: redis sliding window",
			"limit", cfg.BatchRateLimit, "window", cfg.BatchRateWindow)
	default:
		logger.Info("rate limiting: disabled (no REDIS_URL)")
	}

	// Notification relay broker, when a direct Postgres connection exists.
	var broker *notify.Broker
	if db.NotifyConn() != nil {
		broker = notify.NewBroker(db, logger)
	} else {
		logger.Info("notification relay: disabled (no notify connection)")
	}

	// Adapt event hooks from public torii.EventHook to internal workflow hooks.
	var hooks []workflow.EventHook
	for _, h := range o.eventHooks {
		hooks = append(hooks, &eventHookAdapter{hook: h})
	}

	engine := workflow.New(workflow.Config{
		DB:        db,
		Directory: dir,
		Notifier:  notify.NewPGNotifier(db),
		Limiter:   limiter,
		Hooks:     hooks,
		Logger:    logger,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		dir:          dir,
		engine:       engine,
		broker:       broker,
		redisLimiter: redisLimiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
		subs:         make(map[<-chan Notification]chan notify.Notification),
	}, nil
}

// Run starts the notification relay and blocks until ctx is cancelled.
// On return, Shutdown has been called automatically; callers should not
// call Shutdown separately. An App embedded purely for its API methods can
// skip Run: every method works without it, only Subscribe channels stay
// silent.
func (a *App) Run(ctx context.Context) error {
	if a.broker != nil {
		go a.broker.Start(ctx)
	}
	a.logger.Info("torii running", "version", a.version)

	<-ctx.Done()

	sctx, cancel := contextWithOptionalTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(sctx)
}

// Shutdown performs a graceful shutdown: close subscriber relays so
// consumers see end-of-stream, stop the directory's cache janitor, close
// the Redis limiter, then flush telemetry and close the database pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("torii shutting down")

	a.closeSubscribers()
	a.dir.Close()

	if a.redisLimiter != nil {
		if err := a.redisLimiter.Close(); err != nil {
			a.logger.Warn("redis close failed", "error", err)
		}
	}

	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
	a.db.Close(ctx)

	a.logger.Info("torii stopped")
	return nil
}

// Ping checks database connectivity.
func (a *App) Ping(ctx context.Context) error {
	return a.db.Ping(ctx)
}

// ── Ingestion and review ───────────────────────────────────────────────────────

// ProcessExtractedEntities routes one extraction batch on behalf of
// actorID. Candidates are processed independently; per-candidate failures
// land in the result's outcomes, never in the returned error. The whole
// batch is refused only on admission (ErrRateLimited) or infrastructure
// failure. An actor with no role in the project gets every candidate
// skipped with reason "no access" and a nil error.
func (a *App) ProcessExtractedEntities(ctx context.Context, projectID uuid.UUID, actorID string, source Source, candidates []Candidate) (BatchResult, error) {
	in := workflow.BatchInput{
		ProjectID:  projectID,
		ActorID:    actorID,
		Source:     model.Source{Type: source.Type, ID: source.ID, Metadata: source.Metadata},
		Candidates: make([]model.CandidateEntity, len(candidates)),
	}
	for i, c := range candidates {
		in.Candidates[i] = fromPublicCandidate(c)
	}
	res, err := a.engine.ProcessBatch(ctx, in)
	if err != nil {
		return BatchResult{}, publicErr(err)
	}
	return toPublicBatchResult(res), nil
}

// ApproveProposal approves a pending proposal, creating the graph node and
// its evidence in one transaction. Approving a proposal that is no longer
// pending returns ErrConflict and mutates nothing. notes may be empty.
func (a *App) ApproveProposal(ctx context.Context, proposalID uuid.UUID, reviewerID, notes string) (Proposal, Node, error) {
	p, n, err := a.engine.ApproveProposal(ctx, proposalID, reviewerID, optional(notes))
	if err != nil {
		return Proposal{}, Node{}, publicErr(err)
	}
	return toPublicProposal(p), toPublicNode(n), nil
}

// RejectProposal rejects a pending proposal, recording the reviewer and
// notes. No node is created. Rejecting a proposal that is no longer
// pending returns ErrConflict.
func (a *App) RejectProposal(ctx context.Context, proposalID uuid.UUID, reviewerID, notes string) (Proposal, error) {
	p, err := a.engine.RejectProposal(ctx, proposalID, reviewerID, optional(notes))
	if err != nil {
		return Proposal{}, publicErr(err)
	}
	return toPublicProposal(p), nil
}

// ListPendingProposals returns a project's pending proposals, newest
// first. approverRoleID narrows the list to proposals awaiting that role;
// nil lists all pending proposals.
func (a *App) ListPendingProposals(ctx context.Context, projectID uuid.UUID, approverRoleID *uuid.UUID, limit, offset int) ([]Proposal, error) {
	ps, err := a.engine.PendingProposals(ctx, projectID, approverRoleID, limit, offset)
	if err != nil {
		return nil, publicErr(err)
	}
	out := make([]Proposal, len(ps))
	for i, p := range ps {
		out[i] = toPublicProposal(p)
	}
	return out, nil
}

// GetProposal fetches one proposal by id.
func (a *App) GetProposal(ctx context.Context, id uuid.UUID) (Proposal, error) {
	p, err := a.db.GetProposal(ctx, id)
	if err != nil {
		return Proposal{}, publicErr(err)
	}
	return toPublicProposal(p), nil
}

// GetProposalStats summarizes proposal disposition for a project.
func (a *App) GetProposalStats(ctx context.Context, projectID uuid.UUID) (ProposalStats, error) {
	s, err := a.engine.ProposalStats(ctx, projectID)
	if err != nil {
		return ProposalStats{}, publicErr(err)
	}
	return ProposalStats(s), nil
}

// GetNode fetches one committed graph node by id.
func (a *App) GetNode(ctx context.Context, id uuid.UUID) (Node, error) {
	n, err := a.db.GetNode(ctx, id)
	if err != nil {
		return Node{}, publicErr(err)
	}
	return toPublicNode(n), nil
}

// ListNodes pages a project's committed graph nodes, newest first.
func (a *App) ListNodes(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]Node, error) {
	ns, err := a.db.ListNodes(ctx, projectID, limit, offset)
	if err != nil {
		return nil, publicErr(err)
	}
	out := make([]Node, len(ns))
	for i, n := range ns {
		out[i] = toPublicNode(n)
	}
	return out, nil
}

// ── Directory administration ───────────────────────────────────────────────────

// CreateProject creates a tenant workspace.
func (a *App) CreateProject(ctx context.Context, name, slug string) (Project, error) {
	p, err := a.db.CreateProject(ctx, model.Project{Name: name, Slug: slug})
	if err != nil {
		return Project{}, publicErr(err)
	}
	return toPublicProject(p), nil
}

// GetProject fetches one project by id.
func (a *App) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := a.db.GetProject(ctx, id)
	if err != nil {
		return Project{}, publicErr(err)
	}
	return toPublicProject(p), nil
}

// SetProjectThreshold sets or clears (threshold nil) the project-wide
// auto-create confidence threshold. When set it overrides per-permission
// thresholds for every candidate in the project, including an explicit 0.
func (a *App) SetProjectThreshold(ctx context.Context, projectID uuid.UUID, threshold *float64) error {
	return publicErr(a.db.SetProjectThreshold(ctx, projectID, threshold))
}

// CreateRole creates a project role. AuthorityLevel must be within [1, 5];
// ReportsTo, when set, must reference an active role in the same project
// and must not introduce a reporting cycle.
func (a *App) CreateRole(ctx context.Context, r Role) (Role, error) {
	created, err := a.dir.CreateRole(ctx, fromPublicRole(r))
	if err != nil {
		return Role{}, publicErr(err)
	}
	return toPublicRole(created), nil
}

// DeactivateRole soft-deletes a role. Existing nodes and proposals keep
// their history; the role stops resolving for new batches once cached
// directory entries expire.
func (a *App) DeactivateRole(ctx context.Context, id uuid.UUID) error {
	return publicErr(a.dir.DeactivateRole(ctx, id))
}

// SetPermission upserts a role's permission row for one entity type.
// Entity types without a row fall back to read-only defaults.
func (a *App) SetPermission(ctx context.Context, p RolePermission) (RolePermission, error) {
	saved, err := a.dir.UpsertPermission(ctx, fromPublicPermission(p))
	if err != nil {
		return RolePermission{}, publicErr(err)
	}
	return toPublicPermission(saved), nil
}

// AssignRole binds a user to a role within a project, optionally bounded
// by a validity window.
func (a *App) AssignRole(ctx context.Context, asg RoleAssignment) (RoleAssignment, error) {
	created, err := a.dir.AssignRole(ctx, fromPublicAssignment(asg))
	if err != nil {
		return RoleAssignment{}, publicErr(err)
	}
	return toPublicAssignment(created), nil
}

// EndAssignment ends a role assignment effective immediately. Ending an
// assignment that is already over returns ErrNotFound.
func (a *App) EndAssignment(ctx context.Context, id uuid.UUID) error {
	return publicErr(a.dir.EndAssignment(ctx, id))
}

// ListActiveRoles lists a project's active roles, highest authority first.
func (a *App) ListActiveRoles(ctx context.Context, projectID uuid.UUID) ([]Role, error) {
	rs, err := a.dir.ListActiveRoles(ctx, projectID)
	if err != nil {
		return nil, publicErr(err)
	}
	out := make([]Role, len(rs))
	for i, r := range rs {
		out[i] = toPublicRole(r)
	}
	return out, nil
}

// ── Notifications ──────────────────────────────────────────────────────────────

// Subscribe returns a channel receiving every node and proposal event
// relayed off Postgres LISTEN/NOTIFY. Events flow only while Run is active
// and a notify connection is configured; without one, the returned channel
// is already closed. Slow consumers whose buffer fills miss messages
// rather than blocking the relay. Call Unsubscribe when done.
func (a *App) Subscribe() <-chan Notification {
	out := make(chan Notification, 64)
	if a.broker == nil {
		close(out)
		return out
	}

	in := a.broker.Subscribe()
	a.mu.Lock()
	a.subs[out] = in
	a.mu.Unlock()

	go func() {
		defer close(out)
		for n := range in {
			select {
			case out <- Notification{Channel: n.Channel, Payload: n.Payload}:
			default:
				// Subscriber buffer full, drop for them, same contract
				// as the broker itself.
			}
		}
	}()
	return out
}

// Unsubscribe detaches a channel returned by Subscribe and closes it.
func (a *App) Unsubscribe(ch <-chan Notification) {
	a.mu.Lock()
	in, ok := a.subs[ch]
	delete(a.subs, ch)
	a.mu.Unlock()
	if ok {
		a.broker.Unsubscribe(in)
	}
}

func (a *App) closeSubscribers() {
	a.mu.Lock()
	subs := a.subs
	a.subs = make(map[<-chan Notification]chan notify.Notification)
	a.mu.Unlock()
	for _, in := range subs {
		a.broker.Unsubscribe(in)
	}
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// eventHookAdapter wraps a torii.EventHook to satisfy workflow.EventHook.
// It converts internal model types to public torii types at the boundary.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) OnNodeCreated(ctx context.Context, n model.Node) error {
	return a.hook.OnNodeCreated(ctx, toPublicNode(n))
}

func (a *eventHookAdapter) OnProposalCreated(ctx context.Context, p model.Proposal) error {
	return a.hook.OnProposalCreated(ctx, toPublicProposal(p))
}

func (a *eventHookAdapter) OnProposalResolved(ctx context.Context, p model.Proposal) error {
	return a.hook.OnProposalResolved(ctx, toPublicProposal(p))
}

// rateLimiterAdapter wraps a torii.RateLimiter to satisfy workflow.Limiter.
type rateLimiterAdapter struct {
	rl     RateLimiter
	logger *slog.Logger
}

func (a *rateLimiterAdapter) AllowBatch(ctx context.Context, actorID string) ratelimit.Result {
	allowed, resetAt, err := a.rl.Allow(ctx, actorID)
	if err != nil {
		// Fail open, same contract as the built-in limiter.
		a.logger.Warn("rate limit check failed, allowing", "actor_id", actorID, "error", err)
		return ratelimit.Result{Allowed: true}
	}
	return ratelimit.Result{Allowed: allowed, ResetAt: resetAt}
}

// ── Type converters ─────────────────────────────────────────────────────────────

// fromPublicCandidate converts a public Candidate to the internal model.
// Lives here because this is the only file that imports both sides of the
// boundary.
func fromPublicCandidate(c Candidate) model.CandidateEntity {
	return model.CandidateEntity{
		EntityType:       model.EntityType(c.EntityType),
		Title:            c.Title,
		Description:      c.Description,
		Confidence:       c.Confidence,
		Impact:           c.Impact,
		Priority:         c.Priority,
		Tags:             c.Tags,
		Citations:        c.Citations,
		MentionedUsers:   c.MentionedUsers,
		RelatedEntityIDs: c.RelatedEntityIDs,
		Deadline:         c.Deadline,
		Owner:            c.Owner,
		Reasoning:        c.Reasoning,
	}
}

func toPublicNode(n model.Node) Node {
	return Node{
		ID:         n.ID,
		ProjectID:  n.ProjectID,
		NodeType:   string(n.NodeType),
		Attrs:      n.Attrs,
		Confidence: n.Confidence,
		CreatedBy:  n.CreatedBy,
		CreatedAt:  n.CreatedAt,
	}
}

func toPublicProposal(p model.Proposal) Proposal {
	out := Proposal{
		ID:                   p.ID,
		ProjectID:            p.ProjectID,
		ProposedBy:           p.ProposedBy,
		EntityType:           string(p.EntityType),
		ProposedData:         p.ProposedData,
		AIConfidence:         p.AIConfidence,
		AIReasoning:          p.AIReasoning,
		Citations:            p.Citations,
		SourceType:           p.SourceType,
		SourceID:             p.SourceID,
		Status:               string(p.Status),
		RequiresApprovalFrom: p.RequiresApprovalFrom,
		CreatedNodeID:        p.CreatedNodeID,
		ReviewedBy:           p.ReviewedBy,
		ReviewedAt:           p.ReviewedAt,
		ReviewNotes:          p.ReviewNotes,
		CreatedAt:            p.CreatedAt,
	}
	if p.ApproverRole != nil {
		r := toPublicRole(*p.ApproverRole)
		out.ApproverRole = &r
	}
	return out
}

func toPublicRole(r model.Role) Role {
	return Role{
		ID:             r.ID,
		ProjectID:      r.ProjectID,
		RoleCode:       r.RoleCode,
		DisplayName:    r.DisplayName,
		AuthorityLevel: r.AuthorityLevel,
		ReportsTo:      r.ReportsTo,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromPublicRole(r Role) model.Role {
	return model.Role{
		ID:             r.ID,
		ProjectID:      r.ProjectID,
		RoleCode:       r.RoleCode,
		DisplayName:    r.DisplayName,
		AuthorityLevel: r.AuthorityLevel,
		ReportsTo:      r.ReportsTo,
		Active:         r.Active,
	}
}

func toPublicPermission(p model.RolePermission) RolePermission {
	return RolePermission{
		ID:                  p.ID,
		RoleID:              p.RoleID,
		EntityType:          string(p.EntityType),
		CanCreate:           p.CanCreate,
		CanRead:             p.CanRead,
		CanUpdate:           p.CanUpdate,
		CanDelete:           p.CanDelete,
		AutoCreateEnabled:   p.AutoCreateEnabled,
		AutoCreateThreshold: p.AutoCreateThreshold,
		RequiresApproval:    p.RequiresApproval,
		ApprovalFromRole:    p.ApprovalFromRole,
	}
}

func fromPublicPermission(p RolePermission) model.RolePermission {
	return model.RolePermission{
		ID:                  p.ID,
		RoleID:              p.RoleID,
		EntityType:          model.EntityType(p.EntityType),
		CanCreate:           p.CanCreate,
		CanRead:             p.CanRead,
		CanUpdate:           p.CanUpdate,
		CanDelete:           p.CanDelete,
		AutoCreateEnabled:   p.AutoCreateEnabled,
		AutoCreateThreshold: p.AutoCreateThreshold,
		RequiresApproval:    p.RequiresApproval,
		ApprovalFromRole:    p.ApprovalFromRole,
	}
}

func toPublicAssignment(a model.RoleAssignment) RoleAssignment {
	return RoleAssignment{
		ID:         a.ID,
		UserID:     a.UserID,
		ProjectID:  a.ProjectID,
		RoleID:     a.RoleID,
		IsPrimary:  a.IsPrimary,
		ValidFrom:  a.ValidFrom,
		ValidUntil: a.ValidUntil,
		AssignedAt: a.AssignedAt,
		AssignedBy: a.AssignedBy,
	}
}

func fromPublicAssignment(a RoleAssignment) model.RoleAssignment {
	return model.RoleAssignment{
		ID:         a.ID,
		UserID:     a.UserID,
		ProjectID:  a.ProjectID,
		RoleID:     a.RoleID,
		IsPrimary:  a.IsPrimary,
		ValidFrom:  a.ValidFrom,
		ValidUntil: a.ValidUntil,
		AssignedBy: a.AssignedBy,
	}
}

func toPublicProject(p model.Project) Project {
	return Project{
		ID:                         p.ID,
		Name:                       p.Name,
		Slug:                       p.Slug,
		DefaultAutoCreateThreshold: p.DefaultAutoCreateThreshold,
		CreatedAt:                  p.CreatedAt,
		UpdatedAt:                  p.UpdatedAt,
	}
}

func toPublicBatchResult(r workflow.BatchResult) BatchResult {
	out := BatchResult{
		Processed: r.Processed,
		Results:   make([]EntityOutcome, len(r.Results)),
		Summary:   BatchSummary(r.Summary),
	}
	for i, res := range r.Results {
		out.Results[i] = EntityOutcome{
			Index:        res.Index,
			EntityType:   string(res.EntityType),
			Title:        res.Title,
			Route:        string(res.Route),
			Rule:         res.Rule,
			Reason:       res.Reason,
			NodeID:       res.NodeID,
			ProposalID:   res.ProposalID,
			ApproverRole: res.ApproverRole,
			Error:        res.Error,
		}
	}
	return out
}

// ── Helpers ─────────────────────────────────────────────────────────────────────

// publicErr rewraps internal sentinel errors as package torii sentinels so
// embedders can test them with errors.Is. Everything else passes through
// with its internal wrapping intact.
func publicErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return ErrConflict
	case errors.Is(err, workflow.ErrRateLimited):
		return ErrRateLimited
	}
	return err
}

// optional converts an empty string to nil for columns that store NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
