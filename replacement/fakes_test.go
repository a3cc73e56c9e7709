package replacement

import (
	"context"
	"errors"
	"sync"
	"time"

	"shiftflow/audit"
	"shiftflow/directory"
	"shiftflow/notify"
)

// memRepo implements Repository in memory. The mutex stands in for the
// store's statement-level atomicity: each *IfPending call checks and writes
// under one critical section, exactly like a single conditional UPDATE.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Request

	failTake error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]Request)}
}

func (m *memRepo) Create(ctx context.Context, req Request) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	req.ID = m.nextID
	req.Status = StatusPending
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	m.rows[req.ID] = req
	return req, nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (m *memRepo) RecordBroadcastArtifact(ctx context.Context, id, channelID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	req.ChannelID = &channelID
	req.MessageID = &messageID
	m.rows[id] = req
	return nil
}

func (m *memRepo) TakeIfPending(ctx context.Context, id int64, claimant Claimant) (Request, bool, error) {
	if m.failTake != nil {
		return Request{}, false, m.failTake
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok || req.Status != StatusPending {
		return Request{}, false, nil
	}
	req.Status = StatusTaken
	cid, name, handle := claimant.ID, claimant.Name, claimant.Handle
	req.ClaimantID = &cid
	req.ClaimantName = &name
	req.ClaimantHandle = &handle
	m.rows[id] = req
	return req, true, nil
}

func (m *memRepo) CancelIfPending(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok || req.Status != StatusPending {
		return false, nil
	}
	req.Status = StatusCancelled
	m.rows[id] = req
	return true, nil
}

func (m *memRepo) ExpireIfPending(ctx context.Context, id int64) (Request, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok || req.Status != StatusPending {
		return Request{}, false, nil
	}
	req.Status = StatusExpired
	m.rows[id] = req
	return req, true, nil
}

func (m *memRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, req := range m.rows {
		if req.Status == StatusPending && !req.CreatedAt.After(cutoff) {
			out = append(out, req)
		}
	}
	return out, nil
}

// memDirectory satisfies both creatorDirectory and claimDirectory.
type memDirectory struct {
	mu        sync.Mutex
	actors    map[int64]directory.Actor
	employees map[int64]string
	refreshed map[int64]string
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		actors:    make(map[int64]directory.Actor),
		employees: make(map[int64]string),
		refreshed: make(map[int64]string),
	}
}

func (d *memDirectory) Identify(ctx context.Context, actorID int64, displayName string) (directory.Actor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.actors[actorID]; ok {
		a.DisplayName = displayName
		return a, nil
	}
	return directory.Actor{ID: actorID, DisplayName: displayName, Role: directory.RoleNone}, nil
}

func (d *memDirectory) RefreshDisplayName(ctx context.Context, actorID int64, displayName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshed[actorID] = displayName
	return nil
}

func (d *memDirectory) CanonicalName(ctx context.Context, actorID int64, fallback string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name, ok := d.employees[actorID]; ok {
		return name
	}
	return fallback
}

// stubPort records notification calls and can fail selectively.
type stubPort struct {
	mu sync.Mutex

	broadcastErr error
	editErr      error

	broadcasts []string
	edits      []string
	answers    []string
	directs    map[int64][]string
	documents  []string
	nextMsgID  int64
}

func newStubPort() *stubPort {
	return &stubPort{directs: make(map[int64][]string)}
}

func (p *stubPort) SendBroadcast(ctx context.Context, target notify.RoutingTarget, text string, actions []notify.Action) (notify.BroadcastRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broadcastErr != nil {
		return notify.BroadcastRef{}, p.broadcastErr
	}
	p.nextMsgID++
	p.broadcasts = append(p.broadcasts, text)
	return notify.BroadcastRef{ChannelID: target.ChannelID, MessageID: p.nextMsgID}, nil
}

func (p *stubPort) EditMessage(ctx context.Context, ref notify.BroadcastRef, newText string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.editErr != nil {
		return p.editErr
	}
	p.edits = append(p.edits, newText)
	return nil
}

func (p *stubPort) AnswerInteraction(ctx context.Context, interactionID string, alert string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers = append(p.answers, alert)
	return nil
}

func (p *stubPort) SendDirect(ctx context.Context, actorID int64, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.directs[actorID] = append(p.directs[actorID], text)
	return nil
}

func (p *stubPort) SendDocument(ctx context.Context, actorID int64, path, caption string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.documents = append(p.documents, path)
	return nil
}

// stubSink records appended audit records.
type stubSink struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (s *stubSink) Append(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

var errStoreDown = errors.New("store unavailable")
