package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"shiftflow/config"
	"shiftflow/directory"
	"shiftflow/notify"
	"shiftflow/replacement"
)

// dateLayout is the calendar format conversations use, day first.
const dateLayout = "02.01.2006"

// Reply is what the transport should send back to the actor. Options, when
// present, are the closed set of answers the next step accepts; transports
// may render them as quick-reply buttons.
type Reply struct {
	Text    string
	Options []string
}

// requestLifecycle is the slice of the request controller the machine drives.
type requestLifecycle interface {
	Create(ctx context.Context, params replacement.CreateParams) (replacement.Request, error)
	Broadcast(ctx context.Context, req replacement.Request, target notify.RoutingTarget) error
	ValidateDate(date time.Time) error
}

// adminDirectory is the slice of the directory the machine's flows need.
type adminDirectory interface {
	Identify(ctx context.Context, actorID int64, displayName string) (directory.Actor, error)
	GrantRole(ctx context.Context, actorID int64, displayName string, role directory.Role) error
	RevokeActor(ctx context.Context, actorID int64) error
	Approvers(ctx context.Context) ([]directory.Actor, error)
	AddEmployee(ctx context.Context, employeeID int64, fullName string) error
	RemoveEmployee(ctx context.Context, employeeID int64) error
	Employees(ctx context.Context) ([]directory.Employee, error)
}

// Machine runs one tenant's conversation flows over the transport-free
// store. Each tenant runtime owns one machine and feeds it events serially,
// so a step handler never races another event from the same actor.
type Machine struct {
	cfg   config.TenantConfig
	svc   requestLifecycle
	dir   adminDirectory
	store *Store
	loc   *time.Location
	log   *zap.Logger
}

func NewMachine(cfg config.TenantConfig, svc requestLifecycle, dir adminDirectory, log *zap.Logger) *Machine {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return &Machine{
		cfg:   cfg,
		svc:   svc,
		dir:   dir,
		store: NewStore(),
		loc:   loc,
		log:   log,
	}
}

// StartRequest opens the request-creation flow. Only approvers and owners may
// start it; the controller re-checks the role again at completion.
func (m *Machine) StartRequest(ctx context.Context, actorID int64, displayName string) (Reply, error) {
	actor, err := m.dir.Identify(ctx, actorID, displayName)
	if err != nil {
		return Reply{}, fmt.Errorf("session: identify: %w", err)
	}
	if !actor.CanCreateRequests() {
		return Reply{Text: "You are not allowed to create replacement requests."}, nil
	}
	m.store.Begin(actorID, StepAwaitingDate)
	return Reply{Text: "Which date needs a replacement? Send it as DD.MM.YYYY, e.g. 05.09.2026."}, nil
}

// StartAddApprover opens the owner-only flow that grants the approver role.
func (m *Machine) StartAddApprover(ctx context.Context, actorID int64, displayName string) (Reply, error) {
	if reply, ok, err := m.requireOwner(ctx, actorID, displayName); !ok {
		return reply, err
	}
	m.store.Begin(actorID, StepAwaitingApproverID)
	return Reply{Text: "Send the numeric ID of the person to make an approver."}, nil
}

// StartRemoveApprover opens the owner-only flow that revokes an approver.
func (m *Machine) StartRemoveApprover(ctx context.Context, actorID int64, displayName string) (Reply, error) {
	if reply, ok, err := m.requireOwner(ctx, actorID, displayName); !ok {
		return reply, err
	}
	approvers, err := m.dir.Approvers(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("session: list approvers: %w", err)
	}
	if len(approvers) == 0 {
		return Reply{Text: "There are no approvers to remove."}, nil
	}
	var b strings.Builder
	b.WriteString("Current approvers:\n")
	for _, a := range approvers {
		fmt.Fprintf(&b, "%d — %s\n", a.ID, a.DisplayName)
	}
	b.WriteString("\nSend the ID to remove.")
	m.store.Begin(actorID, StepAwaitingApproverRemoval)
	return Reply{Text: b.String()}, nil
}

// StartAddEmployee opens the owner-only flow that registers an employee.
func (m *Machine) StartAddEmployee(ctx context.Context, actorID int64, displayName string) (Reply, error) {
	if reply, ok, err := m.requireOwner(ctx, actorID, displayName); !ok {
		return reply, err
	}
	m.store.Begin(actorID, StepAwaitingEmployeeName)
	return Reply{Text: "Send the employee's full name."}, nil
}

// StartRemoveEmployee opens the owner-only flow that deletes an employee.
func (m *Machine) StartRemoveEmployee(ctx context.Context, actorID int64, displayName string) (Reply, error) {
	if reply, ok, err := m.requireOwner(ctx, actorID, displayName); !ok {
		return reply, err
	}
	employees, err := m.dir.Employees(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("session: list employees: %w", err)
	}
	if len(employees) == 0 {
		return Reply{Text: "The employee directory is empty."}, nil
	}
	var b strings.Builder
	b.WriteString("Employees:\n")
	for _, e := range employees {
		fmt.Fprintf(&b, "%d — %s\n", e.ID, e.FullName)
	}
	b.WriteString("\nSend the ID to delete.")
	m.store.Begin(actorID, StepAwaitingEmployeeRemoval)
	return Reply{Text: b.String()}, nil
}

// CancelFlow abandons whatever the actor had open. Works from any step and is
// idempotent: cancelling with nothing open still confirms.
func (m *Machine) CancelFlow(actorID int64) Reply {
	m.store.End(actorID)
	return Reply{Text: "Cancelled."}
}

// Active reports whether the actor has a conversation open.
func (m *Machine) Active(actorID int64) bool {
	_, ok := m.store.Get(actorID)
	return ok
}

// HandleText advances the actor's open conversation with a free-text answer.
// The second return is false when the actor has no conversation open.
func (m *Machine) HandleText(ctx context.Context, actorID int64, displayName, text string) (Reply, bool, error) {
	sess, ok := m.store.Get(actorID)
	if !ok {
		return Reply{}, false, nil
	}
	text = strings.TrimSpace(text)

	var (
		reply Reply
		err   error
	)
	switch sess.Step {
	case StepAwaitingDate:
		reply, err = m.stepDate(sess, text)
	case StepAwaitingPosition:
		reply, err = m.stepPosition(sess, text)
	case StepAwaitingShop:
		reply, err = m.stepShop(ctx, sess, displayName, text)
	case StepAwaitingApproverID:
		reply, err = m.stepApproverID(ctx, sess, text)
	case StepAwaitingApproverRemoval:
		reply, err = m.stepApproverRemoval(ctx, sess, text)
	case StepAwaitingEmployeeName:
		reply, err = m.stepEmployeeName(sess, text)
	case StepAwaitingEmployeeID:
		reply, err = m.stepEmployeeID(ctx, sess, text)
	case StepAwaitingEmployeeRemoval:
		reply, err = m.stepEmployeeRemoval(ctx, sess, text)
	case StepAwaitingEmployeeRemovalConfirm:
		reply, err = m.stepEmployeeRemovalConfirm(ctx, sess, text)
	default:
		m.store.End(actorID)
		return Reply{Text: "Something went wrong, please start over."}, true, nil
	}
	return reply, true, err
}

func (m *Machine) stepDate(sess *Session, text string) (Reply, error) {
	date, err := time.ParseInLocation(dateLayout, text, m.loc)
	if err != nil {
		return Reply{Text: "That does not look like a date. Send it as DD.MM.YYYY, e.g. 05.09.2026."}, nil
	}
	if err := m.svc.ValidateDate(date); err != nil {
		return Reply{Text: "That date has already passed. Send today's date or a future one."}, nil
	}
	sess.Draft.Date = date
	sess.Step = StepAwaitingPosition
	return Reply{Text: "Which position needs covering?", Options: m.cfg.Positions}, nil
}

func (m *Machine) stepPosition(sess *Session, text string) (Reply, error) {
	if !m.cfg.HasPosition(text) {
		return Reply{Text: "Please pick one of the listed positions.", Options: m.cfg.Positions}, nil
	}
	sess.Draft.Position = text
	sess.Step = StepAwaitingShop
	return Reply{Text: "Which shop?", Options: m.shopNames()}, nil
}

func (m *Machine) stepShop(ctx context.Context, sess *Session, displayName, text string) (Reply, error) {
	shop, ok := m.cfg.FindShop(text)
	if !ok {
		return Reply{Text: "Please pick one of the listed shops.", Options: m.shopNames()}, nil
	}
	sess.Draft.Shop = shop.Name

	req, err := m.svc.Create(ctx, replacement.CreateParams{
		CreatorID:   sess.ActorID,
		CreatorName: displayName,
		Date:        sess.Draft.Date,
		Position:    sess.Draft.Position,
		Shop:        sess.Draft.Shop,
	})
	switch {
	case errors.Is(err, replacement.ErrUnauthorized):
		// Role revoked mid-conversation.
		m.store.End(sess.ActorID)
		return Reply{Text: "You are no longer allowed to create replacement requests."}, nil
	case errors.Is(err, replacement.ErrPastDate):
		// The chosen date slipped into the past while the conversation ran.
		sess.Step = StepAwaitingDate
		return Reply{Text: "That date has already passed. Send a new date as DD.MM.YYYY."}, nil
	case err != nil:
		return Reply{}, fmt.Errorf("session: create request: %w", err)
	}

	m.store.End(sess.ActorID)

	target := notify.RoutingTarget{ChannelID: shop.ChannelID, ThreadID: shop.ThreadID}
	if err := m.svc.Broadcast(ctx, req, target); err != nil {
		m.log.Error("broadcast after create failed", zap.Int64("request_id", req.ID), zap.Error(err))
		return Reply{Text: fmt.Sprintf(
			"Request #%d is saved, but announcing it failed. It will still expire or can be claimed once announced again.", req.ID,
		)}, nil
	}
	return Reply{Text: fmt.Sprintf(
		"Done. Request #%d for %s (%s, %s) is announced.",
		req.ID, req.Date.Format(dateLayout), req.Position, req.Shop,
	)}, nil
}

func (m *Machine) stepApproverID(ctx context.Context, sess *Session, text string) (Reply, error) {
	id, ok := parseActorID(text)
	if !ok {
		return Reply{Text: "Send a numeric ID."}, nil
	}
	if err := m.dir.GrantRole(ctx, id, "", directory.RoleApprover); err != nil {
		return Reply{}, fmt.Errorf("session: grant approver: %w", err)
	}
	m.store.End(sess.ActorID)
	return Reply{Text: fmt.Sprintf("%d is now an approver.", id)}, nil
}

func (m *Machine) stepApproverRemoval(ctx context.Context, sess *Session, text string) (Reply, error) {
	id, ok := parseActorID(text)
	if !ok {
		return Reply{Text: "Send a numeric ID."}, nil
	}
	err := m.dir.RevokeActor(ctx, id)
	if errors.Is(err, directory.ErrActorNotFound) {
		m.store.End(sess.ActorID)
		return Reply{Text: fmt.Sprintf("No approver with ID %d.", id)}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("session: revoke approver: %w", err)
	}
	m.store.End(sess.ActorID)
	return Reply{Text: fmt.Sprintf("%d removed.", id)}, nil
}

func (m *Machine) stepEmployeeName(sess *Session, text string) (Reply, error) {
	if text == "" {
		return Reply{Text: "Send the employee's full name."}, nil
	}
	sess.Draft.EmployeeName = text
	sess.Step = StepAwaitingEmployeeID
	return Reply{Text: "Now send the employee's numeric ID."}, nil
}

func (m *Machine) stepEmployeeID(ctx context.Context, sess *Session, text string) (Reply, error) {
	id, ok := parseActorID(text)
	if !ok {
		return Reply{Text: "Send a numeric ID."}, nil
	}
	if err := m.dir.AddEmployee(ctx, id, sess.Draft.EmployeeName); err != nil {
		return Reply{}, fmt.Errorf("session: add employee: %w", err)
	}
	m.store.End(sess.ActorID)
	return Reply{Text: fmt.Sprintf("%s (%d) added to the directory.", sess.Draft.EmployeeName, id)}, nil
}

func (m *Machine) stepEmployeeRemoval(ctx context.Context, sess *Session, text string) (Reply, error) {
	id, ok := parseActorID(text)
	if !ok {
		return Reply{Text: "Send a numeric ID."}, nil
	}
	sess.Draft.RemovalID = id
	sess.Step = StepAwaitingEmployeeRemovalConfirm
	return Reply{Text: fmt.Sprintf("Delete employee %d? Reply yes to confirm.", id), Options: []string{"yes", "no"}}, nil
}

func (m *Machine) stepEmployeeRemovalConfirm(ctx context.Context, sess *Session, text string) (Reply, error) {
	if !strings.EqualFold(text, "yes") {
		m.store.End(sess.ActorID)
		return Reply{Text: "Kept."}, nil
	}
	err := m.dir.RemoveEmployee(ctx, sess.Draft.RemovalID)
	if errors.Is(err, directory.ErrEmployeeNotFound) {
		m.store.End(sess.ActorID)
		return Reply{Text: fmt.Sprintf("No employee with ID %d.", sess.Draft.RemovalID)}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("session: remove employee: %w", err)
	}
	m.store.End(sess.ActorID)
	return Reply{Text: fmt.Sprintf("Employee %d deleted.", sess.Draft.RemovalID)}, nil
}

func (m *Machine) requireOwner(ctx context.Context, actorID int64, displayName string) (Reply, bool, error) {
	actor, err := m.dir.Identify(ctx, actorID, displayName)
	if err != nil {
		return Reply{}, false, fmt.Errorf("session: identify: %w", err)
	}
	if actor.Role != directory.RoleOwner {
		return Reply{Text: "Only the owner can do that."}, false, nil
	}
	return Reply{}, true, nil
}

func (m *Machine) shopNames() []string {
	names := make([]string, len(m.cfg.Shops))
	for i, s := range m.cfg.Shops {
		names[i] = s.Name
	}
	return names
}

func parseActorID(text string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
