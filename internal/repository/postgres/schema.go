package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the snippet and branch tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				story      VARCHAR(255) NOT NULL,
				parent_id  UUID REFERENCES %[1]s(id),
				child_id   UUID,
				kind       TEXT NOT NULL CHECK (kind IN ('user', 'ai')),
				content    TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, tables.Snippets),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_story_idx ON %[1]s(story, created_at)`, tables.Snippets),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_parent_idx ON %[1]s(parent_id, created_at)`, tables.Snippets),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				story      VARCHAR(255) NOT NULL,
				name       VARCHAR(100) NOT NULL,
				head_id    UUID NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (story, name)
			)`, tables.Branches),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// DropSchema drops the tables (seed --drop-tables)
func DropSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s CASCADE`, tables.Branches, tables.Snippets)
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}
