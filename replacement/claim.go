package replacement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shiftflow/audit"
	"shiftflow/metrics"
	"shiftflow/notify"
)

// Outcome is the result of a claim attempt.
type Outcome int

const (
	// OutcomeWon means this caller committed the pending->taken transition.
	OutcomeWon Outcome = iota
	// OutcomeAlreadyResolved means another writer resolved the request first.
	OutcomeAlreadyResolved
	// OutcomeNotFound means the request id does not exist. Callers surface it
	// exactly like OutcomeAlreadyResolved.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeAlreadyResolved:
		return "already_resolved"
	case OutcomeNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ClaimRequest carries a claim attempt from the transport.
type ClaimRequest struct {
	RequestID     int64
	ClaimantID    int64
	DisplayName   string
	Handle        string
	InteractionID string
}

// claimDirectory is the slice of the directory the arbitrator needs.
type claimDirectory interface {
	RefreshDisplayName(ctx context.Context, actorID int64, displayName string) error
	CanonicalName(ctx context.Context, actorID int64, fallback string) string
}

// Arbitrator owns the pending->taken transition. Any recognized identity may
// attempt a claim; the winner is decided solely by the store's conditional
// update, so the guarantee holds across goroutines and across processes
// sharing the same store.
type Arbitrator struct {
	repo      Repository
	dir       claimDirectory
	port      notify.Port
	sink      audit.Sink
	tenantKey string
	log       *zap.Logger
	now       func() time.Time
}

func NewArbitrator(repo Repository, dir claimDirectory, port notify.Port, sink audit.Sink, tenantKey string, log *zap.Logger) *Arbitrator {
	return &Arbitrator{
		repo:      repo,
		dir:       dir,
		port:      port,
		sink:      sink,
		tenantKey: tenantKey,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock for tests.
func (a *Arbitrator) WithClock(now func() time.Time) *Arbitrator {
	a.now = now
	return a
}

// Claim attempts the transition and runs the winner's side effects. The claim
// is authoritative the instant the conditional update succeeds: every
// downstream call (artifact edit, audit append, notifications) is best-effort
// and its failure is logged, never rolled back. An error is returned only
// when the store itself failed and no outcome was decided.
func (a *Arbitrator) Claim(ctx context.Context, cr ClaimRequest) (Outcome, error) {
	// Display-name refresh rule: fires on every interaction, winners and
	// losers alike.
	if err := a.dir.RefreshDisplayName(ctx, cr.ClaimantID, cr.DisplayName); err != nil {
		a.log.Warn("refresh claimant display name failed", zap.Int64("claimant_id", cr.ClaimantID), zap.Error(err))
	}

	claimant := Claimant{
		ID:     cr.ClaimantID,
		Name:   a.dir.CanonicalName(ctx, cr.ClaimantID, cr.DisplayName),
		Handle: cr.Handle,
	}

	req, won, err := a.repo.TakeIfPending(ctx, cr.RequestID, claimant)
	if err != nil {
		return OutcomeAlreadyResolved, err
	}
	if !won {
		return a.lost(ctx, cr)
	}

	metrics.ClaimsWon.WithLabelValues(a.tenantKey).Inc()
	a.log.Info("claim won",
		zap.Int64("request_id", req.ID),
		zap.Int64("claimant_id", claimant.ID),
		zap.String("claimant", claimant.Name),
	)

	a.afterWin(ctx, req, claimant, cr.InteractionID)
	return OutcomeWon, nil
}

func (a *Arbitrator) lost(ctx context.Context, cr ClaimRequest) (Outcome, error) {
	metrics.ClaimConflicts.WithLabelValues(a.tenantKey).Inc()

	outcome := OutcomeAlreadyResolved
	if _, err := a.repo.GetByID(ctx, cr.RequestID); errors.Is(err, ErrNotFound) {
		outcome = OutcomeNotFound
	}

	if cr.InteractionID != "" {
		if err := a.port.AnswerInteraction(ctx, cr.InteractionID, "This shift is already covered or no longer open."); err != nil {
			a.deliveryFailure("answer lost interaction", cr.RequestID, err)
		}
	}
	return outcome, nil
}

// afterWin performs the post-commit side effects in order: update the
// broadcast artifact, append the audit record, thank the claimant, notify
// the requester.
func (a *Arbitrator) afterWin(ctx context.Context, req Request, claimant Claimant, interactionID string) {
	if ref, ok := req.BroadcastRef(); ok {
		if err := a.port.EditMessage(ctx, ref, takenText(req, claimant.Name, claimant.Handle)); err != nil {
			a.deliveryFailure("edit broadcast artifact", req.ID, err)
		}
	}

	rec := audit.Record{
		RequestID:      req.ID,
		CreatorName:    req.CreatorName,
		RequestDate:    req.Date,
		Position:       req.Position,
		Shop:           req.Shop,
		ClaimantID:     claimant.ID,
		ClaimantName:   claimant.Name,
		ClaimantHandle: claimant.Handle,
		CreatedAt:      req.CreatedAt,
		ClaimedAt:      a.now(),
	}
	if err := a.sink.Append(ctx, rec); err != nil {
		a.log.Error("audit append failed", zap.Int64("request_id", req.ID), zap.Error(err))
	}

	if interactionID != "" {
		if err := a.port.AnswerInteraction(ctx, interactionID, "Thank you, the shift is yours."); err != nil {
			a.deliveryFailure("answer won interaction", req.ID, err)
		}
	}

	notice := fmt.Sprintf("Your request #%d (%s, %s) was taken by %s.",
		req.ID, req.Date.Format("02.01.2006"), req.Position, claimant.Name)
	if err := a.port.SendDirect(ctx, req.CreatorID, notice); err != nil {
		a.deliveryFailure("notify requester", req.ID, err)
	}
}

func (a *Arbitrator) deliveryFailure(op string, requestID int64, err error) {
	metrics.DeliveryFailures.WithLabelValues(a.tenantKey).Inc()
	a.log.Error(op+" failed", zap.Int64("request_id", requestID), zap.Error(err))
}
