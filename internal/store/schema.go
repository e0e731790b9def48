package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/database"
)

// schema returns the DDL for the registry and every category partition.
// Partition names come from category.Table and never from input.
func schema(dialect database.Dialect) []string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "TIMESTAMP"
	if dialect == database.Postgres {
		id = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
	id          %s,
	category    TEXT NOT NULL,
	filename    TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	pages       INTEGER NOT NULL,
	ingested_at %s NOT NULL,
	UNIQUE (category, filename)
)`, id, ts)}

	for _, c := range category.All() {
		table := c.Table()
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          %s,
	filename    TEXT NOT NULL,
	category    TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	text        TEXT NOT NULL
)`, table, id),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_filename ON %s (filename, page_number)`, table, table),
		)
	}
	return stmts
}

// Migrate creates the registry and partition tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.db.Dialect) {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
