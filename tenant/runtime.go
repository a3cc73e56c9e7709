package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shiftflow/audit"
	"shiftflow/config"
	"shiftflow/db"
	"shiftflow/directory"
	"shiftflow/notify"
	"shiftflow/replacement"
	"shiftflow/session"
)

// Message is an inbound free-text event from one actor.
type Message struct {
	ActorID     int64
	DisplayName string
	Text        string
}

// Interaction is an inbound button press carrying its opaque payload.
type Interaction struct {
	ActorID       int64
	DisplayName   string
	Handle        string
	Data          string
	InteractionID string
}

// Runtime wires one tenant's services over its own schema-pinned pool and
// notification port. Runtimes never share state; a failure inside one cannot
// reach its siblings.
type Runtime struct {
	cfg     config.TenantConfig
	pool    *pgxpool.Pool
	port    notify.Port
	dir     *directory.Service
	svc     *replacement.Service
	arb     *replacement.Arbitrator
	rec     *replacement.Reconciler
	dist    *audit.Distributor
	machine *session.Machine
	sched   *Scheduler
	log     *zap.Logger
}

// NewRuntime provisions the tenant's schema, connects its pool and assembles
// the full service graph. Configured owners are seeded into the directory so
// a fresh tenant is administrable from the first boot.
func NewRuntime(ctx context.Context, dsn string, cfg config.TenantConfig, port notify.Port, log *zap.Logger) (*Runtime, error) {
	if err := db.Migrate(ctx, dsn, cfg.Key); err != nil {
		return nil, fmt.Errorf("tenant %s: migrate: %w", cfg.Key, err)
	}
	pool, err := db.NewTenantPool(ctx, dsn, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: connect: %w", cfg.Key, err)
	}

	loc, err := cfg.Location()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenant %s: %w", cfg.Key, err)
	}
	hour, minute, err := cfg.ReportClock()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("tenant %s: %w", cfg.Key, err)
	}

	dirSvc := directory.NewService(directory.NewRepository(pool))
	for _, ownerID := range cfg.Owners {
		if err := dirSvc.GrantRole(ctx, ownerID, "", directory.RoleOwner); err != nil {
			pool.Close()
			return nil, fmt.Errorf("tenant %s: seed owner %d: %w", cfg.Key, ownerID, err)
		}
	}

	repo := replacement.NewRepository(pool)
	sink := audit.NewCSVSink(cfg.ReportsDir)
	svc := replacement.NewService(repo, dirSvc, port, cfg.Key, loc, log)
	arb := replacement.NewArbitrator(repo, dirSvc, port, sink, cfg.Key, log)
	rec := replacement.NewReconciler(repo, port, cfg.Key, cfg.ExpiryThreshold(), log)
	dist := audit.NewDistributor(cfg.ReportsDir, cfg.CityName, dirSvc, port, log)

	rt := &Runtime{
		cfg:     cfg,
		pool:    pool,
		port:    port,
		dir:     dirSvc,
		svc:     svc,
		arb:     arb,
		rec:     rec,
		dist:    dist,
		machine: session.NewMachine(cfg, svc, dirSvc, log),
		log:     log,
	}
	rt.sched = NewScheduler(rec, dist, hour, minute, loc, log)
	return rt, nil
}

// Run drives the tenant's scheduled jobs until the context is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	return r.sched.Run(ctx)
}

// Close releases the tenant's pool.
func (r *Runtime) Close() {
	r.pool.Close()
}

// Directory exposes the tenant's directory service for the admin surface.
func (r *Runtime) Directory() *directory.Service {
	return r.dir
}

// Config returns the tenant's static configuration.
func (r *Runtime) Config() config.TenantConfig {
	return r.cfg
}

// HandleMessage routes one inbound text event: commands start or cancel
// flows, everything else feeds the actor's open conversation. The bool is
// false when nothing consumed the event.
func (r *Runtime) HandleMessage(ctx context.Context, msg Message) (session.Reply, bool, error) {
	text := strings.TrimSpace(msg.Text)
	if cmd, ok := strings.CutPrefix(text, "/"); ok {
		return r.handleCommand(ctx, msg, strings.ToLower(cmd))
	}
	return r.machine.HandleText(ctx, msg.ActorID, msg.DisplayName, text)
}

func (r *Runtime) handleCommand(ctx context.Context, msg Message, cmd string) (session.Reply, bool, error) {
	var (
		reply session.Reply
		err   error
	)
	switch cmd {
	case "replace":
		reply, err = r.machine.StartRequest(ctx, msg.ActorID, msg.DisplayName)
	case "cancel":
		reply = r.machine.CancelFlow(msg.ActorID)
	case "add_approver":
		reply, err = r.machine.StartAddApprover(ctx, msg.ActorID, msg.DisplayName)
	case "remove_approver":
		reply, err = r.machine.StartRemoveApprover(ctx, msg.ActorID, msg.DisplayName)
	case "add_employee":
		reply, err = r.machine.StartAddEmployee(ctx, msg.ActorID, msg.DisplayName)
	case "delete_employee":
		reply, err = r.machine.StartRemoveEmployee(ctx, msg.ActorID, msg.DisplayName)
	case "report":
		reply, err = r.sendReport(ctx, msg)
	case "start", "help":
		reply = session.Reply{Text: helpText}
	default:
		return session.Reply{}, false, nil
	}
	if err != nil {
		return session.Reply{}, true, err
	}
	return reply, true, nil
}

// sendReport hands the current month's audit export to a requesting owner.
func (r *Runtime) sendReport(ctx context.Context, msg Message) (session.Reply, error) {
	actor, err := r.dir.Identify(ctx, msg.ActorID, msg.DisplayName)
	if err != nil {
		return session.Reply{}, fmt.Errorf("tenant %s: identify: %w", r.cfg.Key, err)
	}
	if actor.Role != directory.RoleOwner {
		return session.Reply{Text: "Only the owner can request reports."}, nil
	}
	if err := r.dist.SendCurrent(ctx, msg.ActorID); err != nil {
		r.log.Error("send current report failed", zap.Int64("actor_id", msg.ActorID), zap.Error(err))
		return session.Reply{Text: "Could not send the report, try again later."}, nil
	}
	return session.Reply{}, nil
}

// HandleInteraction routes a button press. Claim payloads go to the
// arbitrator; anything else is logged and dropped.
func (r *Runtime) HandleInteraction(ctx context.Context, in Interaction) error {
	id, ok := replacement.ParseClaimAction(in.Data)
	if !ok {
		r.log.Warn("unrecognized interaction payload", zap.String("data", in.Data))
		return nil
	}
	outcome, err := r.arb.Claim(ctx, replacement.ClaimRequest{
		RequestID:     id,
		ClaimantID:    in.ActorID,
		DisplayName:   in.DisplayName,
		Handle:        in.Handle,
		InteractionID: in.InteractionID,
	})
	if err != nil {
		return fmt.Errorf("tenant %s: claim %d: %w", r.cfg.Key, id, err)
	}
	r.log.Debug("claim handled",
		zap.Int64("request_id", id),
		zap.Int64("claimant_id", in.ActorID),
		zap.Stringer("outcome", outcome),
	)
	return nil
}

const helpText = `Commands:
/replace — announce a shift that needs covering
/cancel — abandon the current flow
/report — get this month's report (owner)
/add_approver, /remove_approver — manage approvers (owner)
/add_employee, /delete_employee — manage the employee directory (owner)`
