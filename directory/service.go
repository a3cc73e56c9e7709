package directory

import (
	"context"
	"errors"
	"fmt"
)

// Service wraps the directory with the authorization and display-name rules.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Identify resolves an actor and applies the refresh rule: the display name
// observed on the interaction overwrites the stored one. Unknown identities
// return RoleNone without an error so callers can treat them as recognized
// but unprivileged.
func (s *Service) Identify(ctx context.Context, actorID int64, displayName string) (Actor, error) {
	if err := s.repo.RefreshDisplayName(ctx, actorID, displayName); err != nil {
		return Actor{}, err
	}
	actor, err := s.repo.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			return Actor{ID: actorID, DisplayName: displayName, Role: RoleNone}, nil
		}
		return Actor{}, err
	}
	return actor, nil
}

// RefreshDisplayName applies the refresh rule without resolving the actor.
// Unknown identities are a no-op.
func (s *Service) RefreshDisplayName(ctx context.Context, actorID int64, displayName string) error {
	return s.repo.RefreshDisplayName(ctx, actorID, displayName)
}

// GrantRole adds an actor with the given privilege, or updates the privilege
// of an existing one.
func (s *Service) GrantRole(ctx context.Context, actorID int64, displayName string, role Role) error {
	if role != RoleOwner && role != RoleApprover {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.repo.UpsertActor(ctx, Actor{ID: actorID, DisplayName: displayName, Role: role})
}

// RevokeActor removes an actor from the directory entirely.
func (s *Service) RevokeActor(ctx context.Context, actorID int64) error {
	return s.repo.DeleteActor(ctx, actorID)
}

// Approvers lists all actors holding the approver role.
func (s *Service) Approvers(ctx context.Context) ([]Actor, error) {
	return s.repo.ListActorsByRole(ctx, RoleApprover)
}

// Owners lists all actors holding the owner role.
func (s *Service) Owners(ctx context.Context) ([]Actor, error) {
	return s.repo.ListActorsByRole(ctx, RoleOwner)
}

// AddEmployee registers or updates an employee record.
func (s *Service) AddEmployee(ctx context.Context, employeeID int64, fullName string) error {
	if fullName == "" {
		return fmt.Errorf("directory: employee full name required")
	}
	return s.repo.UpsertEmployee(ctx, Employee{ID: employeeID, FullName: fullName})
}

// RemoveEmployee deletes an employee record.
func (s *Service) RemoveEmployee(ctx context.Context, employeeID int64) error {
	return s.repo.DeleteEmployee(ctx, employeeID)
}

// Employees lists the whole employee directory.
func (s *Service) Employees(ctx context.Context) ([]Employee, error) {
	return s.repo.ListEmployees(ctx)
}

// CanonicalName resolves the name recorded when an identity claims a request:
// the employee directory's full name when present, otherwise the fallback
// observed on the interaction.
func (s *Service) CanonicalName(ctx context.Context, actorID int64, fallback string) string {
	emp, err := s.repo.GetEmployee(ctx, actorID)
	if err != nil {
		return fallback
	}
	return emp.FullName
}
