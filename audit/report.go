package audit

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"shiftflow/directory"
	"shiftflow/notify"
)

// ownerDirectory is the slice of the directory the distributor needs.
type ownerDirectory interface {
	Owners(ctx context.Context) ([]directory.Actor, error)
}

// Distributor ships the previous period's report file to every owner on the
// first day of the month and removes the file afterwards.
type Distributor struct {
	reportsDir string
	cityName   string
	owners     ownerDirectory
	port       notify.Port
	log        *zap.Logger
	now        func() time.Time
}

func NewDistributor(reportsDir, cityName string, owners ownerDirectory, port notify.Port, log *zap.Logger) *Distributor {
	return &Distributor{
		reportsDir: reportsDir,
		cityName:   cityName,
		owners:     owners,
		port:       port,
		log:        log,
		now:        time.Now,
	}
}

func (d *Distributor) WithClock(now func() time.Time) *Distributor {
	d.now = now
	return d
}

// DistributePrevious sends the previous month's report to all owners. The
// file is deleted only after every recipient attempt has been made, never
// mid-loop; individual delivery failures are logged and do not abort the
// remaining recipients.
func (d *Distributor) DistributePrevious(ctx context.Context) error {
	prev := d.now().AddDate(0, 0, -1)
	path := Filename(d.reportsDir, prev)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		d.log.Info("no report file for previous period", zap.String("path", path))
		return nil
	}

	owners, err := d.owners.Owners(ctx)
	if err != nil {
		return fmt.Errorf("audit: list owners: %w", err)
	}
	if len(owners) == 0 {
		d.log.Warn("no owners to receive report", zap.String("path", path))
		return nil
	}

	caption := fmt.Sprintf("Monthly replacement report (%s), %s", d.cityName, prev.Format("January 2006"))
	for _, owner := range owners {
		if err := d.port.SendDocument(ctx, owner.ID, path, caption); err != nil {
			d.log.Error("send report failed",
				zap.Int64("owner_id", owner.ID),
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("audit: remove distributed report: %w", err)
	}
	d.log.Info("report distributed and removed", zap.String("path", path), zap.Int("owners", len(owners)))
	return nil
}

// SendCurrent delivers the in-progress report for the current period to a
// single actor, for the manual fetch operation.
func (d *Distributor) SendCurrent(ctx context.Context, actorID int64) error {
	path := Filename(d.reportsDir, d.now())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return d.port.SendDirect(ctx, actorID, "No report exists for the current period yet.")
	}
	caption := fmt.Sprintf("Replacement report (%s), current period", d.cityName)
	return d.port.SendDocument(ctx, actorID, path, caption)
}
