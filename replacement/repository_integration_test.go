package replacement

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"shiftflow/db"
)

// TestRepository_Integration connects to a real PostgreSQL via DATABASE_URL and
// verifies the conditional-update guarantees against a live tenant schema.
func TestRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tenantKey := fmt.Sprintf("itest_%d", time.Now().UnixNano())
	if err := db.Migrate(ctx, dsn, tenantKey); err != nil {
		t.Fatalf("migrate tenant schema: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		_ = db.DropTenantSchema(ctx2, dsn, tenantKey)
	})

	pool, err := db.NewTenantPool(ctx, dsn, tenantKey)
	if err != nil {
		t.Fatalf("connect tenant pool: %v", err)
	}
	defer pool.Close()

	repo := NewRepository(pool)

	req, err := repo.Create(ctx, Request{
		CreatorID:   100,
		CreatorName: "Anna Creator",
		Date:        time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Position:    "barista",
		Shop:        "Central",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %q", req.Status)
	}

	if err := repo.RecordBroadcastArtifact(ctx, req.ID, -100500, 42); err != nil {
		t.Fatalf("record artifact: %v", err)
	}
	stored, err := repo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ChannelID == nil || *stored.ChannelID != -100500 || stored.MessageID == nil || *stored.MessageID != 42 {
		t.Fatalf("artifact not recorded: %+v", stored)
	}

	// Concurrent claimants against the same row: the conditional update must
	// admit exactly one.
	const claimants = 24
	wins := make([]bool, claimants)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < claimants; i++ {
		i := i
		g.Go(func() error {
			_, won, err := repo.TakeIfPending(gctx, req.ID, Claimant{
				ID:     int64(200 + i),
				Name:   fmt.Sprintf("Worker %d", i),
				Handle: fmt.Sprintf("worker%d", i),
			})
			wins[i] = won
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent take: %v", err)
	}
	won := 0
	winner := -1
	for i, w := range wins {
		if w {
			won++
			winner = i
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}

	stored, err = repo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("get after take: %v", err)
	}
	if stored.Status != StatusTaken {
		t.Fatalf("expected taken, got %q", stored.Status)
	}
	if stored.ClaimantID == nil || *stored.ClaimantID != int64(200+winner) {
		t.Fatalf("claimant fields do not match the winner: %+v", stored)
	}

	// A resolved request cannot be cancelled or expired.
	if cancelled, err := repo.CancelIfPending(ctx, req.ID); err != nil || cancelled {
		t.Fatalf("cancel after take: cancelled=%v err=%v", cancelled, err)
	}
	if _, expired, err := repo.ExpireIfPending(ctx, req.ID); err != nil || expired {
		t.Fatalf("expire after take: expired=%v err=%v", expired, err)
	}

	// Stale listing picks up old pending rows only.
	old, err := repo.Create(ctx, Request{
		CreatorID:   100,
		CreatorName: "Anna Creator",
		Date:        time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC),
		Position:    "cook",
		Shop:        "Central",
	})
	if err != nil {
		t.Fatalf("create stale candidate: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE replacements SET created_at = now() - interval '100 hours' WHERE id = $1`, old.ID); err != nil {
		t.Fatalf("age stale candidate: %v", err)
	}
	stale, err := repo.ListStalePending(ctx, time.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("expected only the aged row, got %+v", stale)
	}

	if _, err := repo.GetByID(ctx, 999999); err == nil {
		t.Fatal("expected not-found for unknown id")
	}
}
