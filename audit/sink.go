// Package audit provides the append-only audit trail for resolved
// replacement requests and the monthly report distribution built on top of
// it. Records are never updated or deleted.
package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the fully resolved request appended after a claim commits.
type Record struct {
	ID             string
	RequestID      int64
	CreatorName    string
	RequestDate    time.Time
	Position       string
	Shop           string
	ClaimantID     int64
	ClaimantName   string
	ClaimantHandle string
	CreatedAt      time.Time
	ClaimedAt      time.Time
}

// Sink is the append-only audit port.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

var header = []string{
	"record_id", "request_id", "creator", "request_date", "position",
	"shop", "claimant", "claimant_id", "claimant_handle", "created_at", "claimed_at",
}

// CSVSink appends records to one CSV file per calendar month under the
// tenant's reports directory.
type CSVSink struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir, now: time.Now}
}

// WithClock overrides the wall clock; used by tests and the scheduler.
func (s *CSVSink) WithClock(now func() time.Time) *CSVSink {
	s.now = now
	return s
}

// Filename returns the report file path for the month containing t.
func Filename(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("replacements_%s.csv", t.Format("2006-01")))
}

func (s *CSVSink) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("audit: create reports dir: %w", err)
	}

	path := Filename(s.dir, s.now())
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("audit: write header: %w", err)
		}
	}
	row := []string{
		rec.ID,
		strconv.FormatInt(rec.RequestID, 10),
		rec.CreatorName,
		rec.RequestDate.Format("02.01.2006"),
		rec.Position,
		rec.Shop,
		rec.ClaimantName,
		strconv.FormatInt(rec.ClaimantID, 10),
		rec.ClaimantHandle,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.ClaimedAt.UTC().Format(time.RFC3339),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("audit: flush record: %w", err)
	}
	return nil
}
