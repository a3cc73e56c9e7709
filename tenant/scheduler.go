package tenant

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shiftflow/audit"
	"shiftflow/replacement"
)

// Scheduler fires the tenant's daily maintenance at a fixed local time:
// expiry sweep every day, report distribution on the first of the month.
// The daily cadence is far coarser than a run's duration, so runs never
// overlap; that is the stated non-reentrancy guarantee.
type Scheduler struct {
	rec    *replacement.Reconciler
	dist   *audit.Distributor
	hour   int
	minute int
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time
}

func NewScheduler(rec *replacement.Reconciler, dist *audit.Distributor, hour, minute int, loc *time.Location, log *zap.Logger) *Scheduler {
	return &Scheduler{
		rec:    rec,
		dist:   dist,
		hour:   hour,
		minute: minute,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run blocks until the context is cancelled, firing the daily job at each
// trigger boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		next := s.nextTrigger(s.now())
		timer.Reset(time.Until(next))
		s.log.Debug("daily job scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.RunOnce(ctx, next)
		}
	}
}

// RunOnce executes one trigger's worth of work for the given boundary time.
func (s *Scheduler) RunOnce(ctx context.Context, at time.Time) {
	expired, err := s.rec.Sweep(ctx)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	} else if expired > 0 {
		s.log.Info("expiry sweep done", zap.Int("expired", expired))
	}

	if at.In(s.loc).Day() == 1 {
		if err := s.dist.DistributePrevious(ctx); err != nil {
			s.log.Error("report distribution failed", zap.Error(err))
		}
	}
}

// nextTrigger returns the first hh:mm boundary strictly after now.
func (s *Scheduler) nextTrigger(now time.Time) time.Time {
	now = now.In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
