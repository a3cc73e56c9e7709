package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shiftflow/db"
)

// ProvisionTenant creates a fresh per-run tenant schema on the DSN, returns a
// pool pinned to it plus a teardown dropping the schema. Each stress run gets
// its own namespace, so a shared database can host concurrent runs.
func ProvisionTenant(ctx context.Context, dsn string) (*pgxpool.Pool, string, func(context.Context) error, error) {
	tenantKey := fmt.Sprintf("stress_run_%d", time.Now().UnixNano())

	if err := db.Migrate(ctx, dsn, tenantKey); err != nil {
		return nil, "", nil, fmt.Errorf("migrate tenant schema: %w", err)
	}

	pool, err := db.NewTenantPool(ctx, dsn, tenantKey)
	if err != nil {
		_ = db.DropTenantSchema(ctx, dsn, tenantKey)
		return nil, "", nil, fmt.Errorf("connect tenant pool: %w", err)
	}

	teardown := func(ctx context.Context) error {
		return db.DropTenantSchema(ctx, dsn, tenantKey)
	}
	return pool, tenantKey, teardown, nil
}
