package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool constructs a pgx connection pool using the provided connection string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("db: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// NewTenantPool constructs a pool whose every connection is pinned to the
// tenant's schema via search_path. All unqualified table names resolve inside
// the tenant schema only, so no cross-tenant reference can exist.
func NewTenantPool(ctx context.Context, connString, tenantKey string) (*pgxpool.Pool, error) {
	if tenantKey == "" {
		return nil, fmt.Errorf("db: empty tenant key")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}

	setPath := fmt.Sprintf("SET search_path TO %s", pgx.Identifier{SchemaName(tenantKey)}.Sanitize())
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, setPath)
		return err
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// SchemaName returns the Postgres schema holding a tenant's tables.
func SchemaName(tenantKey string) string {
	return "tenant_" + tenantKey
}
