package replacement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shiftflow/metrics"
	"shiftflow/notify"
)

// Reconciler sweeps requests that stayed pending past the tenant's threshold
// into the expired state. It uses the same pending-guarded conditional update
// as claim, so a claim landing mid-sweep safely wins or loses per request:
// whichever write commits first, the other affects zero rows.
type Reconciler struct {
	repo      Repository
	port      notify.Port
	tenantKey string
	threshold time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewReconciler(repo Repository, port notify.Port, tenantKey string, threshold time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		port:      port,
		tenantKey: tenantKey,
		threshold: threshold,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Sweep expires every stale pending request and returns how many transitions
// this run committed. Per-request notification failures are logged and do not
// stop the sweep; a store failure aborts it.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.threshold)

	stale, err := r.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range stale {
		req, won, err := r.repo.ExpireIfPending(ctx, candidate.ID)
		if err != nil {
			return expired, err
		}
		if !won {
			// A claim beat the sweep to this request; nothing to do.
			continue
		}

		expired++
		metrics.RequestsExpired.WithLabelValues(r.tenantKey).Inc()
		r.log.Info("request expired",
			zap.Int64("request_id", req.ID),
			zap.Time("created_at", req.CreatedAt),
		)

		if ref, ok := req.BroadcastRef(); ok {
			if err := r.port.EditMessage(ctx, ref, expiredText(req)); err != nil {
				metrics.DeliveryFailures.WithLabelValues(r.tenantKey).Inc()
				r.log.Error("edit expired artifact failed", zap.Int64("request_id", req.ID), zap.Error(err))
			}
		}
		notice := fmt.Sprintf("Your request #%d (%s, %s) expired without a taker.",
			req.ID, req.Date.Format("02.01.2006"), req.Position)
		if err := r.port.SendDirect(ctx, req.CreatorID, notice); err != nil {
			metrics.DeliveryFailures.WithLabelValues(r.tenantKey).Inc()
			r.log.Error("notify creator of expiry failed", zap.Int64("request_id", req.ID), zap.Error(err))
		}
	}
	return expired, nil
}
