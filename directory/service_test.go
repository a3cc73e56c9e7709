package directory

import (
	"context"
	"errors"
	"testing"
)

type fakeRepo struct {
	actors    map[int64]Actor
	employees map[int64]Employee
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		actors:    make(map[int64]Actor),
		employees: make(map[int64]Employee),
	}
}

func (f *fakeRepo) UpsertActor(ctx context.Context, actor Actor) error {
	if existing, ok := f.actors[actor.ID]; ok && actor.DisplayName == "" {
		actor.DisplayName = existing.DisplayName
	}
	f.actors[actor.ID] = actor
	return nil
}

func (f *fakeRepo) GetActor(ctx context.Context, actorID int64) (Actor, error) {
	a, ok := f.actors[actorID]
	if !ok {
		return Actor{}, ErrActorNotFound
	}
	return a, nil
}

func (f *fakeRepo) RefreshDisplayName(ctx context.Context, actorID int64, displayName string) error {
	if displayName == "" {
		return nil
	}
	if a, ok := f.actors[actorID]; ok {
		a.DisplayName = displayName
		f.actors[actorID] = a
	}
	return nil
}

func (f *fakeRepo) ListActorsByRole(ctx context.Context, role Role) ([]Actor, error) {
	var out []Actor
	for _, a := range f.actors {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteActor(ctx context.Context, actorID int64) error {
	if _, ok := f.actors[actorID]; !ok {
		return ErrActorNotFound
	}
	delete(f.actors, actorID)
	return nil
}

func (f *fakeRepo) UpsertEmployee(ctx context.Context, emp Employee) error {
	f.employees[emp.ID] = emp
	return nil
}

func (f *fakeRepo) GetEmployee(ctx context.Context, employeeID int64) (Employee, error) {
	e, ok := f.employees[employeeID]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, nil
}

func (f *fakeRepo) ListEmployees(ctx context.Context) ([]Employee, error) {
	var out []Employee
	for _, e := range f.employees {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeRepo) DeleteEmployee(ctx context.Context, employeeID int64) error {
	if _, ok := f.employees[employeeID]; !ok {
		return ErrEmployeeNotFound
	}
	delete(f.employees, employeeID)
	return nil
}

func TestIdentifyUnknownActorIsRoleNone(t *testing.T) {
	svc := NewService(newFakeRepo())

	actor, err := svc.Identify(context.Background(), 42, "Drifter")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if actor.Role != RoleNone {
		t.Errorf("expected RoleNone, got %s", actor.Role)
	}
	if actor.CanCreateRequests() {
		t.Errorf("RoleNone must not be allowed to create requests")
	}
}

func TestIdentifyRefreshesDisplayName(t *testing.T) {
	repo := newFakeRepo()
	repo.actors[7] = Actor{ID: 7, DisplayName: "Old Name", Role: RoleApprover}
	svc := NewService(repo)

	actor, err := svc.Identify(context.Background(), 7, "New Name")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if actor.DisplayName != "New Name" {
		t.Errorf("expected refreshed display name, got %q", actor.DisplayName)
	}
	if !actor.CanCreateRequests() {
		t.Errorf("approver must be allowed to create requests")
	}
}

func TestGrantRoleRejectsNone(t *testing.T) {
	svc := NewService(newFakeRepo())

	err := svc.GrantRole(context.Background(), 9, "Someone", RoleNone)
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestCanonicalNamePrefersEmployeeRecord(t *testing.T) {
	repo := newFakeRepo()
	repo.employees[31] = Employee{ID: 31, FullName: "Berta Fields"}
	svc := NewService(repo)

	if got := svc.CanonicalName(context.Background(), 31, "berta_f"); got != "Berta Fields" {
		t.Errorf("expected directory name, got %q", got)
	}
	if got := svc.CanonicalName(context.Background(), 99, "fallback"); got != "fallback" {
		t.Errorf("expected fallback for unknown employee, got %q", got)
	}
}

func TestRemoveEmployeeNotFound(t *testing.T) {
	svc := NewService(newFakeRepo())
	if err := svc.RemoveEmployee(context.Background(), 5); !errors.Is(err, ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
}
