package session

import (
	"sync"
	"time"
)

// Step identifies where a conversation stands inside its flow.
type Step int

const (
	StepAwaitingDate Step = iota
	StepAwaitingPosition
	StepAwaitingShop

	StepAwaitingApproverID
	StepAwaitingApproverRemoval
	StepAwaitingEmployeeName
	StepAwaitingEmployeeID
	StepAwaitingEmployeeRemoval
	StepAwaitingEmployeeRemovalConfirm
)

// Draft accumulates the answers collected so far.
type Draft struct {
	Date         time.Time
	Position     string
	Shop         string
	EmployeeName string
	RemovalID    int64
}

// Session is one actor's in-flight conversation.
type Session struct {
	ActorID   int64
	Step      Step
	Draft     Draft
	StartedAt time.Time
}

// Store holds the in-flight conversations of one tenant, keyed by actor.
// Starting a new flow replaces whatever the actor had open: the last start
// wins and the abandoned draft is simply dropped.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Begin opens a fresh session at the given step, discarding any previous one.
func (s *Store) Begin(actorID int64, step Step) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{ActorID: actorID, Step: step, StartedAt: time.Now()}
	s.sessions[actorID] = sess
	return sess
}

// Get returns the actor's open session, if any.
func (s *Store) Get(actorID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[actorID]
	return sess, ok
}

// End closes the actor's session. Ending an absent session is a no-op.
func (s *Store) End(actorID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, actorID)
}
