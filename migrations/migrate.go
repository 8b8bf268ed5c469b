// Package migrations embeds each service's SQL schema and applies it at
// startup under an advisory lock, so concurrently starting replicas do not
// race on DDL.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed hotel/*.sql car/*.sql billing/*.sql
var migrationFiles embed.FS

// Apply runs the named service's migrations in filename order.
func Apply(ctx context.Context, pool *pgxpool.Pool, service string) error {
	entries, err := migrationFiles.ReadDir(service)
	if err != nil {
		return fmt.Errorf("read migrations for %s: %w", service, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	const advisoryLockID int64 = 420980117
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockID)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		qualified := service + "/" + name

		var applied bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, qualified).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", qualified, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := migrationFiles.ReadFile(qualified)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", qualified, err)
		}
		sql := strings.TrimSpace(string(sqlBytes))
		if sql == "" {
			continue
		}
		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec migration %s: %w", qualified, err)
		}
		if _, err := conn.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, qualified); err != nil {
			return fmt.Errorf("record migration %s: %w", qualified, err)
		}
	}
	return nil
}
