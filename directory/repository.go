package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrActorNotFound signals that the identity is not in the directory.
	ErrActorNotFound = errors.New("directory: actor not found")
	// ErrEmployeeNotFound signals that the employee record does not exist.
	ErrEmployeeNotFound = errors.New("directory: employee not found")
	// ErrInvalidRole signals a role outside the owner/approver/none set.
	ErrInvalidRole = errors.New("directory: invalid role")
)

// Repository handles data access for the actor and employee directories.
type Repository interface {
	UpsertActor(ctx context.Context, actor Actor) error
	GetActor(ctx context.Context, actorID int64) (Actor, error)
	RefreshDisplayName(ctx context.Context, actorID int64, displayName string) error
	ListActorsByRole(ctx context.Context, role Role) ([]Actor, error)
	DeleteActor(ctx context.Context, actorID int64) error

	UpsertEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, employeeID int64) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	DeleteEmployee(ctx context.Context, employeeID int64) error
}

// PGRepository implements Repository backed by the tenant's PostgreSQL schema.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UpsertActor inserts the actor or updates its role, keeping an existing
// display name when the incoming one is empty.
func (r *PGRepository) UpsertActor(ctx context.Context, actor Actor) error {
	if !isValidRole(actor.Role) {
		return ErrInvalidRole
	}
	const query = `
		INSERT INTO actors (actor_id, display_name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (actor_id) DO UPDATE
		SET role = EXCLUDED.role,
		    display_name = CASE WHEN EXCLUDED.display_name = '' THEN actors.display_name ELSE EXCLUDED.display_name END
	`
	if _, err := r.pool.Exec(ctx, query, actor.ID, actor.DisplayName, actor.Role); err != nil {
		return fmt.Errorf("directory: upsert actor: %w", err)
	}
	return nil
}

func (r *PGRepository) GetActor(ctx context.Context, actorID int64) (Actor, error) {
	const query = `SELECT actor_id, display_name, role FROM actors WHERE actor_id = $1`

	var actor Actor
	if err := r.pool.QueryRow(ctx, query, actorID).Scan(&actor.ID, &actor.DisplayName, &actor.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrActorNotFound
		}
		return Actor{}, fmt.Errorf("directory: get actor: %w", err)
	}
	return actor, nil
}

// RefreshDisplayName updates the mutable display name of a known actor.
// Unknown actors are ignored: the refresh rule fires on every interaction,
// including from identities outside the directory.
func (r *PGRepository) RefreshDisplayName(ctx context.Context, actorID int64, displayName string) error {
	if displayName == "" {
		return nil
	}
	const query = `UPDATE actors SET display_name = $2 WHERE actor_id = $1`
	if _, err := r.pool.Exec(ctx, query, actorID, displayName); err != nil {
		return fmt.Errorf("directory: refresh display name: %w", err)
	}
	return nil
}

func (r *PGRepository) ListActorsByRole(ctx context.Context, role Role) ([]Actor, error) {
	const query = `SELECT actor_id, display_name, role FROM actors WHERE role = $1 ORDER BY actor_id`

	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("directory: list actors: %w", err)
	}
	defer rows.Close()

	actors := make([]Actor, 0, 8)
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.Role); err != nil {
			return nil, fmt.Errorf("directory: scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate actors: %w", err)
	}
	return actors, nil
}

func (r *PGRepository) DeleteActor(ctx context.Context, actorID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM actors WHERE actor_id = $1`, actorID)
	if err != nil {
		return fmt.Errorf("directory: delete actor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActorNotFound
	}
	return nil
}

func (r *PGRepository) UpsertEmployee(ctx context.Context, emp Employee) error {
	const query = `
		INSERT INTO employees (employee_id, full_name)
		VALUES ($1, $2)
		ON CONFLICT (employee_id) DO UPDATE SET full_name = EXCLUDED.full_name
	`
	if _, err := r.pool.Exec(ctx, query, emp.ID, emp.FullName); err != nil {
		return fmt.Errorf("directory: upsert employee: %w", err)
	}
	return nil
}

func (r *PGRepository) GetEmployee(ctx context.Context, employeeID int64) (Employee, error) {
	const query = `SELECT employee_id, full_name FROM employees WHERE employee_id = $1`

	var emp Employee
	if err := r.pool.QueryRow(ctx, query, employeeID).Scan(&emp.ID, &emp.FullName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrEmployeeNotFound
		}
		return Employee{}, fmt.Errorf("directory: get employee: %w", err)
	}
	return emp, nil
}

func (r *PGRepository) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := r.pool.Query(ctx, `SELECT employee_id, full_name FROM employees ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("directory: list employees: %w", err)
	}
	defer rows.Close()

	employees := make([]Employee, 0, 8)
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.FullName); err != nil {
			return nil, fmt.Errorf("directory: scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate employees: %w", err)
	}
	return employees, nil
}

func (r *PGRepository) DeleteEmployee(ctx context.Context, employeeID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM employees WHERE employee_id = $1`, employeeID)
	if err != nil {
		return fmt.Errorf("directory: delete employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
