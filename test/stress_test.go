package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiftflow/audit"
	"shiftflow/directory"
	"shiftflow/notify"
	"shiftflow/replacement"
	"shiftflow/test/actors"
	"shiftflow/test/chaos"
	"shiftflow/test/infra"
	"shiftflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", false, "randomly kill database backends during the run")
)

func seedRNG(seed int64) { rand.Seed(seed) }

// TestClaimArbitrationStress races creators, claimers, cancellers and the
// expiry sweeper against one live schema and checks the store invariants the
// conditional update is supposed to hold.
func TestClaimArbitrationStress(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC *infra.PGContainer
		dsn string
		err error
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, tenantKey, teardown, err := infra.ProvisionTenant(ctx, dsn)
	if err != nil {
		t.Fatalf("provision tenant: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	env := buildEnv(t, ctx, pool, tenantKey)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		creatorID := int64(100 + i)
		claimantID := int64(1000 + i)
		g.Go(func() error { return actors.Creator(ctx2, env, creatorID, stop) })
		g.Go(func() error { return actors.Claimer(ctx2, env, claimantID, stop) })
	}
	g.Go(func() error { return actors.Canceller(ctx2, env, stop) })
	g.Go(func() error { return actors.Sweeper(ctx2, env, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, "", stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}

	// At-most-one-winner accounting: every row in the taken state corresponds
	// to exactly one claim attempt that observed a win.
	var taken int64
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM replacements WHERE status='taken'`).Scan(&taken); err != nil {
		t.Fatalf("count taken: %v", err)
	}
	if wins := env.Wins.Load(); wins != taken {
		t.Fatalf("win accounting mismatch: %d observed wins vs %d taken rows (seed=%d)", wins, taken, seed)
	}
	t.Logf("run summary: created=%d wins=%d swept=%d (seed=%d)",
		env.Created.Load(), env.Wins.Load(), env.Swept.Load(), seed)
}

// buildEnv assembles the real service graph over the stress schema: PG
// repositories, a logging notification port and a throwaway audit sink.
func buildEnv(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tenantKey string) *actors.Env {
	t.Helper()
	log := zap.NewNop()

	dirSvc := directory.NewService(directory.NewRepository(pool))
	for i := 0; i < *flConcurrency; i++ {
		if err := dirSvc.GrantRole(ctx, int64(100+i), fmt.Sprintf("Creator %d", i), directory.RoleApprover); err != nil {
			t.Fatalf("seed approver: %v", err)
		}
	}

	repo := replacement.NewRepository(pool)
	port := notify.NewLogPort(log)
	sink := audit.NewCSVSink(t.TempDir())

	return &actors.Env{
		Pool:   pool,
		Svc:    replacement.NewService(repo, dirSvc, port, tenantKey, time.UTC, log),
		Arb:    replacement.NewArbitrator(repo, dirSvc, port, sink, tenantKey, log),
		Rec:    replacement.NewReconciler(repo, port, tenantKey, 72*time.Hour, log),
		Target: notify.RoutingTarget{ChannelID: -100500},
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	rows, err := pool.Query(ctx, `
		SELECT id, status, creator_id, claimant_id, channel_id, message_id, created_at
		FROM replacements ORDER BY id DESC LIMIT 50`)
	if err != nil {
		t.Logf("dump error: %v", err)
		return
	}
	defer rows.Close()
	cols := rows.FieldDescriptions()
	t.Logf("-- replacements --")
	for rows.Next() {
		vals, _ := rows.Values()
		buf := make([]any, 0, len(vals))
		for i := range vals {
			buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
		}
		t.Logf("%s", buf)
	}
}
