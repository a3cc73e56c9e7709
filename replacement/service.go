package replacement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"shiftflow/directory"
	"shiftflow/metrics"
	"shiftflow/notify"
)

var (
	// ErrUnauthorized signals a creation attempt by an identity without the
	// approver or owner role.
	ErrUnauthorized = errors.New("replacement: not authorized to create requests")
	// ErrPastDate signals a request date before today in the tenant calendar.
	ErrPastDate = errors.New("replacement: request date is in the past")
	// ErrAlreadyResolved signals a cancel that lost the conditional update.
	ErrAlreadyResolved = errors.New("replacement: request already resolved")
)

// claimActionPrefix is the opaque action payload carried by the broadcast
// button, mirrored back on the claim interaction.
const claimActionPrefix = "take_"

// ClaimActionData encodes the claim button payload for a request.
func ClaimActionData(id int64) string {
	return claimActionPrefix + strconv.FormatInt(id, 10)
}

// ParseClaimAction decodes a claim button payload.
func ParseClaimAction(data string) (int64, bool) {
	raw, ok := strings.CutPrefix(data, claimActionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// creatorDirectory is the slice of the directory the controller needs.
type creatorDirectory interface {
	Identify(ctx context.Context, actorID int64, displayName string) (directory.Actor, error)
}

// Service is the request lifecycle controller: creation, broadcast hand-off
// and cancellation. Claim and expiry transitions live in Arbitrator and
// Reconciler respectively.
type Service struct {
	repo      Repository
	dir       creatorDirectory
	port      notify.Port
	tenantKey string
	loc       *time.Location
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, dir creatorDirectory, port notify.Port, tenantKey string, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		dir:       dir,
		port:      port,
		tenantKey: tenantKey,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams enumerates the immutable fields of a new request.
type CreateParams struct {
	CreatorID   int64
	CreatorName string
	Date        time.Time
	Position    string
	Shop        string
}

// Create persists a new pending request. The session machine validates role
// and date before calling; both are re-checked here as invariants, since role
// membership can change mid-conversation and the controller must hold its own
// contract regardless of caller.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	actor, err := s.dir.Identify(ctx, params.CreatorID, params.CreatorName)
	if err != nil {
		return Request{}, fmt.Errorf("replacement: identify creator: %w", err)
	}
	if !actor.CanCreateRequests() {
		return Request{}, ErrUnauthorized
	}
	if s.pastDate(params.Date) {
		return Request{}, ErrPastDate
	}

	created, err := s.repo.Create(ctx, Request{
		CreatorID:   params.CreatorID,
		CreatorName: params.CreatorName,
		Date:        params.Date,
		Position:    params.Position,
		Shop:        params.Shop,
	})
	if err != nil {
		return Request{}, err
	}

	metrics.RequestsCreated.WithLabelValues(s.tenantKey).Inc()
	s.log.Info("request created",
		zap.Int64("request_id", created.ID),
		zap.Int64("creator_id", created.CreatorID),
		zap.String("position", created.Position),
		zap.String("shop", created.Shop),
	)
	return created, nil
}

// Broadcast hands the persisted request to the notification port and records
// the delivered artifact. The request row is already committed: a broadcast
// failure is returned to the caller for reporting but never rolls it back.
func (s *Service) Broadcast(ctx context.Context, req Request, target notify.RoutingTarget) error {
	text := broadcastText(req)
	actions := []notify.Action{{Label: "Take this shift", Data: ClaimActionData(req.ID)}}

	ref, err := s.port.SendBroadcast(ctx, target, text, actions)
	if err != nil {
		metrics.DeliveryFailures.WithLabelValues(s.tenantKey).Inc()
		s.log.Error("broadcast failed",
			zap.Int64("request_id", req.ID),
			zap.Int64("channel_id", target.ChannelID),
			zap.Error(err),
		)
		return fmt.Errorf("replacement: broadcast request %d: %w", req.ID, err)
	}

	if err := s.repo.RecordBroadcastArtifact(ctx, req.ID, ref.ChannelID, ref.MessageID); err != nil {
		// The message is out; losing the artifact only degrades later edits.
		s.log.Error("record broadcast artifact failed", zap.Int64("request_id", req.ID), zap.Error(err))
		return err
	}
	return nil
}

// Cancel moves a still-pending request to cancelled. Losing the conditional
// update means another writer resolved the request first; that is a normal
// outcome, surfaced as ErrAlreadyResolved.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	won, err := s.repo.CancelIfPending(ctx, id)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyResolved
	}
	s.log.Info("request cancelled", zap.Int64("request_id", id))
	return nil
}

// ValidateDate checks a request date against "today" in the tenant calendar.
func (s *Service) ValidateDate(date time.Time) error {
	if s.pastDate(date) {
		return ErrPastDate
	}
	return nil
}

func (s *Service) pastDate(date time.Time) bool {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	return d.Before(today)
}

func broadcastText(req Request) string {
	return fmt.Sprintf(
		"Replacement needed\n\nDate: %s\nPosition: %s\nShop: %s\n\nPress the button below to take this shift.",
		req.Date.Format("02.01.2006"), req.Position, req.Shop,
	)
}

func takenText(req Request, claimantName, claimantHandle string) string {
	who := claimantName
	if claimantHandle != "" {
		who = fmt.Sprintf("%s (@%s)", claimantName, claimantHandle)
	}
	return fmt.Sprintf(
		"Replacement found\n\nDate: %s\nPosition: %s\nShop: %s\n\nCovered by: %s",
		req.Date.Format("02.01.2006"), req.Position, req.Shop, who,
	)
}

func expiredText(req Request) string {
	return fmt.Sprintf(
		"Request expired\n\nDate: %s\nPosition: %s\nShop: %s\n\nNobody took this shift in time.",
		req.Date.Format("02.01.2006"), req.Position, req.Shop,
	)
}
