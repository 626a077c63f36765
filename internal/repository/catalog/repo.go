// Package catalog persists the relational field catalog: attribute
// definitions, latent types, tags and datasets. The catalog governs which
// physical index fields exist; rows are disabled rather than deleted so
// stale documents stay decodable.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the consumer interface over a pgx pool (ISP).
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repo implements the catalog repositories over PostgreSQL.
type Repo struct {
	db querier
}

// New creates a catalog repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// Migrate creates the catalog tables when missing.
func (r *Repo) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attribute_fields (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			field_type TEXT NOT NULL,
			string_format TEXT NOT NULL DEFAULT '',
			array_type TEXT NOT NULL DEFAULT '',
			enum_choices JSONB,
			is_required BOOLEAN NOT NULL DEFAULT FALSE,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			is_indexed BOOLEAN NOT NULL DEFAULT TRUE,
			is_mapped BOOLEAN NOT NULL DEFAULT FALSE,
			image_count BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS latent_types (
			name TEXT PRIMARY KEY,
			is_mask BOOLEAN NOT NULL DEFAULT FALSE,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			is_mapped BOOLEAN NOT NULL DEFAULT FALSE,
			image_count BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			name TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			image_count BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS datasets (
			slug TEXT NOT NULL,
			version BIGINT NOT NULL,
			name TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			image_count BIGINT NOT NULL DEFAULT 0,
			is_frozen BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (slug, version)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
	}
	return nil
}
