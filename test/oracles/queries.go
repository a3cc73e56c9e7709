package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			// A taken row always carries its winner.
			Name: "O1_taken_has_claimant",
			SQL: `SELECT id, status FROM replacements
                  WHERE status = 'taken' AND (claimant_id IS NULL OR claimant_name IS NULL)`,
		},
		{
			// No unresolved or non-taken terminal row may carry claimant fields:
			// a lost claim must leave nothing behind.
			Name: "O2_claimant_leak",
			SQL: `SELECT id, status FROM replacements
                  WHERE status IN ('pending','cancelled','expired') AND claimant_id IS NOT NULL`,
		},
		{
			// The broadcast artifact is recorded whole or not at all.
			Name: "O3_artifact_halves",
			SQL: `SELECT id FROM replacements
                  WHERE (channel_id IS NULL) <> (message_id IS NULL)`,
		},
		{
			// Status domain is closed; the CHECK should make this impossible,
			// the oracle catches a migration regression.
			Name: "O4_status_domain",
			SQL: `SELECT id, status FROM replacements
                  WHERE status NOT IN ('pending','taken','expired','cancelled')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
