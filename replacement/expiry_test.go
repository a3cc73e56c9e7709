package replacement

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestReconciler(repo *memRepo, port *stubPort, threshold time.Duration, now time.Time) *Reconciler {
	rec := NewReconciler(repo, port, "northfield", threshold, zap.NewNop())
	return rec.WithClock(func() time.Time { return now })
}

func TestSweepExpiresOnlyStale(t *testing.T) {
	repo := newMemRepo()
	port := newStubPort()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rec := newTestReconciler(repo, port, 72*time.Hour, now)

	stale, _ := repo.Create(context.Background(), Request{
		CreatorID:   100,
		CreatorName: "Anna",
		Date:        time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		Position:    "barista",
		CreatedAt:   now.Add(-80 * time.Hour),
	})
	repo.RecordBroadcastArtifact(context.Background(), stale.ID, -100500, 7)
	fresh, _ := repo.Create(context.Background(), Request{
		CreatorID:   100,
		CreatorName: "Anna",
		Date:        time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		Position:    "barista",
		CreatedAt:   now.Add(-time.Hour),
	})

	expired, err := rec.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expiry, got %d", expired)
	}

	got, _ := repo.GetByID(context.Background(), stale.ID)
	if got.Status != StatusExpired {
		t.Fatalf("stale request should be expired, got %q", got.Status)
	}
	got, _ = repo.GetByID(context.Background(), fresh.ID)
	if got.Status != StatusPending {
		t.Fatalf("fresh request must stay pending, got %q", got.Status)
	}

	if len(port.edits) != 1 {
		t.Fatalf("expected the broadcast artifact edited once, got %d", len(port.edits))
	}
	if notices := port.directs[100]; len(notices) != 1 {
		t.Fatalf("expected one expiry notice to the creator, got %v", notices)
	}
}

func TestSweepSkipsResolvedRequests(t *testing.T) {
	repo := newMemRepo()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rec := newTestReconciler(repo, newStubPort(), 72*time.Hour, now)

	taken, _ := repo.Create(context.Background(), Request{
		CreatorID: 100, CreatorName: "Anna", CreatedAt: now.Add(-100 * time.Hour),
	})
	repo.TakeIfPending(context.Background(), taken.ID, Claimant{ID: 201, Name: "Boris"})
	cancelled, _ := repo.Create(context.Background(), Request{
		CreatorID: 100, CreatorName: "Anna", CreatedAt: now.Add(-100 * time.Hour),
	})
	repo.CancelIfPending(context.Background(), cancelled.ID)

	expired, err := rec.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 0 {
		t.Fatalf("resolved requests must not be expired, got %d", expired)
	}
}

func TestSweepNotificationFailureContinues(t *testing.T) {
	repo := newMemRepo()
	port := newStubPort()
	port.editErr = errStoreDown
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rec := newTestReconciler(repo, port, 72*time.Hour, now)

	for i := 0; i < 3; i++ {
		req, _ := repo.Create(context.Background(), Request{
			CreatorID: 100, CreatorName: "Anna", CreatedAt: now.Add(-80 * time.Hour),
		})
		repo.RecordBroadcastArtifact(context.Background(), req.ID, -100500, int64(i+1))
	}

	expired, err := rec.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 3 {
		t.Fatalf("edit failures must not stop the sweep, expired %d of 3", expired)
	}
}

// A claim racing the sweep resolves every request exactly once: either the
// claimant wins and the sweep skips it, or the sweep expires it and the claim
// reports already resolved. Never both, never neither.
func TestClaimRacesSweep(t *testing.T) {
	repo := newMemRepo()
	port := newStubPort()
	sink := &stubSink{}
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rec := newTestReconciler(repo, port, 72*time.Hour, now)
	arb := newTestArbitrator(repo, newMemDirectory(), port, sink)

	const requests = 16
	ids := make([]int64, requests)
	for i := range ids {
		req, _ := repo.Create(context.Background(), Request{
			CreatorID: 100, CreatorName: "Anna", CreatedAt: now.Add(-80 * time.Hour),
		})
		ids[i] = req.ID
	}

	var wg sync.WaitGroup
	wonByClaim := make([]bool, requests)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := rec.Sweep(context.Background()); err != nil {
			t.Errorf("sweep: %v", err)
		}
	}()
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			out, err := arb.Claim(context.Background(), ClaimRequest{RequestID: id, ClaimantID: 201, DisplayName: "Boris"})
			if err != nil {
				t.Errorf("claim %d: %v", id, err)
				return
			}
			wonByClaim[i] = out == OutcomeWon
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		req, err := repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		switch {
		case wonByClaim[i] && req.Status != StatusTaken:
			t.Errorf("request %d: claim won but status is %q", id, req.Status)
		case !wonByClaim[i] && req.Status != StatusExpired:
			t.Errorf("request %d: claim lost but status is %q", id, req.Status)
		}
	}
}
