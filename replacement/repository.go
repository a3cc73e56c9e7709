package replacement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the request id does not exist.
	ErrNotFound = errors.New("replacement: not found")
)

// Repository is the persistence port for replacement requests. The three
// *IfPending operations are single-statement conditional updates: they apply
// only while the row is still pending and report whether this caller won the
// transition. That compare-and-swap is the system's sole synchronization
// primitive; no in-process lock supplements it.
type Repository interface {
	Create(ctx context.Context, req Request) (Request, error)
	GetByID(ctx context.Context, id int64) (Request, error)
	RecordBroadcastArtifact(ctx context.Context, id, channelID, messageID int64) error

	TakeIfPending(ctx context.Context, id int64, claimant Claimant) (Request, bool, error)
	CancelIfPending(ctx context.Context, id int64) (bool, error)
	ExpireIfPending(ctx context.Context, id int64) (Request, bool, error)

	ListStalePending(ctx context.Context, cutoff time.Time) ([]Request, error)
}

// PGRepository implements Repository against the tenant's PostgreSQL schema.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, creator_id, creator_name, request_date, position, shop, status,
       claimant_id, claimant_name, claimant_handle, channel_id, message_id, created_at`

func (r *PGRepository) Create(ctx context.Context, req Request) (Request, error) {
	const query = `
		INSERT INTO replacements (creator_id, creator_name, request_date, position, shop, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING ` + requestColumns

	row := r.pool.QueryRow(ctx, query,
		req.CreatorID,
		req.CreatorName,
		req.Date,
		req.Position,
		req.Shop,
	)
	created, err := scanRequest(row)
	if err != nil {
		return Request{}, fmt.Errorf("replacement: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id int64) (Request, error) {
	const query = `SELECT ` + requestColumns + ` FROM replacements WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("replacement: get: %w", err)
	}
	return req, nil
}

// RecordBroadcastArtifact stores the delivered message reference. Idempotent:
// replaying the delivery confirmation rewrites the same values.
func (r *PGRepository) RecordBroadcastArtifact(ctx context.Context, id, channelID, messageID int64) error {
	const query = `UPDATE replacements SET channel_id = $2, message_id = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, channelID, messageID)
	if err != nil {
		return fmt.Errorf("replacement: record broadcast artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TakeIfPending commits the pending->taken transition and the claimant fields
// in one atomic statement. Exactly one concurrent caller for a given id
// observes won=true; everyone else gets won=false regardless of timing.
func (r *PGRepository) TakeIfPending(ctx context.Context, id int64, claimant Claimant) (Request, bool, error) {
	const query = `
		UPDATE replacements
		SET status = 'taken',
		    claimant_id = $2,
		    claimant_name = $3,
		    claimant_handle = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, claimant.ID, claimant.Name, claimant.Handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, false, nil
		}
		return Request{}, false, fmt.Errorf("replacement: take: %w", err)
	}
	return req, true, nil
}

// CancelIfPending moves pending->cancelled under the same guard as claim, so
// a request that was just taken cannot be cancelled out from under its winner.
func (r *PGRepository) CancelIfPending(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE replacements SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("replacement: cancel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireIfPending moves pending->expired under the pending guard. A claim
// racing the sweep makes one of the two writes a no-op, never both.
func (r *PGRepository) ExpireIfPending(ctx context.Context, id int64) (Request, bool, error) {
	const query = `
		UPDATE replacements
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, false, nil
		}
		return Request{}, false, fmt.Errorf("replacement: expire: %w", err)
	}
	return req, true, nil
}

func (r *PGRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]Request, error) {
	const query = `
		SELECT ` + requestColumns + `
		FROM replacements
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("replacement: list stale pending: %w", err)
	}
	defer rows.Close()

	requests := make([]Request, 0, 8)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("replacement: scan stale pending: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replacement: iterate stale pending: %w", err)
	}
	return requests, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
		&req.ID,
		&req.CreatorID,
		&req.CreatorName,
		&req.Date,
		&req.Position,
		&req.Shop,
		&req.Status,
		&req.ClaimantID,
		&req.ClaimantName,
		&req.ClaimantHandle,
		&req.ChannelID,
		&req.MessageID,
		&req.CreatedAt,
	)
}
