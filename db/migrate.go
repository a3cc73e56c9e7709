package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaDDL is applied inside the tenant schema. Statuses are constrained in
// the table rather than a shared enum so tenant schemas stay self-contained.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS actors (
    actor_id      BIGINT PRIMARY KEY,
    display_name  TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'none'
                  CHECK (role IN ('owner', 'approver', 'none'))
);

CREATE TABLE IF NOT EXISTS employees (
    employee_id   BIGINT PRIMARY KEY,
    full_name     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS replacements (
    id              BIGSERIAL PRIMARY KEY,
    creator_id      BIGINT NOT NULL,
    creator_name    TEXT NOT NULL,
    request_date    DATE NOT NULL,
    position        TEXT NOT NULL,
    shop            TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending'
                    CHECK (status IN ('pending', 'taken', 'expired', 'cancelled')),
    claimant_id     BIGINT,
    claimant_name   TEXT,
    claimant_handle TEXT,
    channel_id      BIGINT,
    message_id      BIGINT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS replacements_pending_age_idx
    ON replacements (created_at) WHERE status = 'pending';
`

// Migrate provisions the tenant's schema and tables. Idempotent: safe to run
// on every boot.
func Migrate(ctx context.Context, connString, tenantKey string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("db: connect for migration: %w", err)
	}
	defer conn.Close(ctx)

	ident := pgx.Identifier{SchemaName(tenantKey)}.Sanitize()
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", ident)); err != nil {
		return fmt.Errorf("db: create schema for tenant %s: %w", tenantKey, err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", ident)); err != nil {
		return fmt.Errorf("db: set search_path for tenant %s: %w", tenantKey, err)
	}
	if _, err := conn.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("db: apply schema for tenant %s: %w", tenantKey, err)
	}
	return nil
}

// DropTenantSchema removes a tenant's schema and all its data. Used by tests.
func DropTenantSchema(ctx context.Context, connString, tenantKey string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("db: connect for drop: %w", err)
	}
	defer conn.Close(ctx)

	ident := pgx.Identifier{SchemaName(tenantKey)}.Sanitize()
	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", ident)); err != nil {
		return fmt.Errorf("db: drop schema for tenant %s: %w", tenantKey, err)
	}
	return nil
}
