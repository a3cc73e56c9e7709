package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shiftflow/notify"
	"shiftflow/replacement"
)

// Env bundles the services and counters the stress actors share. Wins counts
// claim attempts that observed OutcomeWon; the oracle compares it with the
// number of rows in the taken state at the end of the run.
type Env struct {
	Pool *pgxpool.Pool
	Svc  *replacement.Service
	Arb  *replacement.Arbitrator
	Rec  *replacement.Reconciler

	Target notify.RoutingTarget

	Created atomic.Int64
	Wins    atomic.Int64
	Swept   atomic.Int64
}

// Creator keeps producing pending requests and broadcasting them, the way an
// approver's completed conversation would.
func Creator(ctx context.Context, env *Env, creatorID int64, stop <-chan struct{}) error {
	positions := []string{"barista", "cook", "cashier"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		req, err := env.Svc.Create(ctx, replacement.CreateParams{
			CreatorID:   creatorID,
			CreatorName: fmt.Sprintf("Creator %d", creatorID),
			Date:        time.Now().AddDate(0, 0, 1+rand.Intn(14)),
			Position:    positions[rand.Intn(len(positions))],
			Shop:        "Central",
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("creator: %w", err)
		}
		env.Created.Add(1)
		if err := env.Svc.Broadcast(ctx, req, env.Target); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("creator broadcast: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Claimer picks random requests regardless of state and hammers the claim
// path. Losing is a normal outcome; only store errors abort the actor.
func Claimer(ctx context.Context, env *Env, claimantID int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		err := env.Pool.QueryRow(ctx, `SELECT id FROM replacements ORDER BY random() LIMIT 1`).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("claimer pick: %w", err)
		}

		outcome, err := env.Arb.Claim(ctx, replacement.ClaimRequest{
			RequestID:   id,
			ClaimantID:  claimantID,
			DisplayName: fmt.Sprintf("Claimer %d", claimantID),
			Handle:      fmt.Sprintf("claimer%d", claimantID),
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("claimer claim %d: %w", id, err)
		}
		if outcome == replacement.OutcomeWon {
			env.Wins.Add(1)
		}
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
}

// Canceller cancels random pending requests, racing the claimers.
func Canceller(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		err := env.Pool.QueryRow(ctx, `SELECT id FROM replacements WHERE status='pending' ORDER BY random() LIMIT 1`).Scan(&id)
		if err == nil {
			if err := env.Svc.Cancel(ctx, id); err != nil &&
				!errors.Is(err, replacement.ErrAlreadyResolved) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("canceller %d: %w", id, err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("canceller pick: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}

// Sweeper ages a slice of pending rows past the threshold and runs the
// reconciler, racing the live claims with the same conditional update.
func Sweeper(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		// Make some rows stale so the sweep has work.
		_, _ = env.Pool.Exec(ctx, `
			UPDATE replacements SET created_at = created_at - interval '200 hours'
			WHERE id IN (SELECT id FROM replacements WHERE status='pending' ORDER BY random() LIMIT 3)`)

		expired, err := env.Rec.Sweep(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("sweeper: %w", err)
		}
		env.Swept.Add(int64(expired))
		time.Sleep(time.Duration(150+rand.Intn(200)) * time.Millisecond)
	}
}
