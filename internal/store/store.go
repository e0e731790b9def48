// Package store persists extracted pages in one partition table per
// category. A documents registry with a unique (category, filename) key makes
// check-then-insert atomic across workers and processes.
//
// The same SQL runs on SQLite and PostgreSQL; placeholders are written as '?'
// and rebound for the active dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
)

// Match is one page that satisfied a search.
type Match struct {
	Filename   string            `json:"filename"`
	Category   category.Category `json:"category"`
	PageNumber int               `json:"page_number"`
}

// Entry is one document in the first-page catalog.
type Entry struct {
	Filename string            `json:"filename"`
	Category category.Category `json:"category"`
}

// Store is the DocumentStore over a database.Client.
type Store struct {
	db     *database.Client
	logger *slog.Logger
	now    func() time.Time
}

func New(db *database.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "document-store"),
		now:    time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func checkCategory(c category.Category) error {
	if !c.Valid() {
		return apperrors.Wrap(apperrors.ErrUnknownCategory, fmt.Errorf("category %d", c))
	}
	return nil
}

// Exists reports whether (c, filename) is registered or already has page
// rows in its partition.
func (s *Store) Exists(ctx context.Context, c category.Category, filename string) (bool, error) {
	if err := checkCategory(c); err != nil {
		return false, err
	}
	query := s.db.Rebind(`SELECT
	EXISTS (SELECT 1 FROM documents WHERE category = ? AND filename = ?)
	OR EXISTS (SELECT 1 FROM ` + c.Table() + ` WHERE filename = ?)`)
	var found bool
	if err := s.db.DB.QueryRowContext(ctx, query, c.String(), filename, filename).Scan(&found); err != nil {
		return false, fmt.Errorf("checking %s/%s: %w", c, filename, err)
	}
	return found, nil
}

// InsertPage appends one page row. It does not touch the registry.
func (s *Store) InsertPage(ctx context.Context, c category.Category, filename string, page document.Page) error {
	if err := checkCategory(c); err != nil {
		return err
	}
	_, err := s.db.DB.ExecContext(ctx, s.insertPageSQL(c), filename, c.String(), page.Number, page.Stored())
	if err != nil {
		return fmt.Errorf("inserting page %d of %s/%s: %w", page.Number, c, filename, err)
	}
	return nil
}

func (s *Store) insertPageSQL(c category.Category) string {
	return s.db.Rebind(`INSERT INTO ` + c.Table() + ` (filename, category, page_number, text) VALUES (?, ?, ?, ?)`)
}

// InsertDocument registers (c, filename) and writes all of its pages in one
// transaction. It returns false without writing anything when the document
// is already registered.
func (s *Store) InsertDocument(ctx context.Context, c category.Category, filename string, verdict document.Verdict, pages []document.Page) (bool, error) {
	if err := checkCategory(c); err != nil {
		return false, err
	}
	inserted := false
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO documents (category, filename, verdict, pages, ingested_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (category, filename) DO NOTHING`),
			c.String(), filename, verdict.String(), len(pages), s.now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("registering document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("registering document: %w", err)
		}
		if n == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, s.insertPageSQL(c))
		if err != nil {
			return fmt.Errorf("preparing page insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range pages {
			if _, err := stmt.ExecContext(ctx, filename, c.String(), p.Number, p.Stored()); err != nil {
				return fmt.Errorf("inserting page %d: %w", p.Number, err)
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storing %s/%s: %w", c, filename, err)
	}
	if inserted {
		s.logger.Debug("document stored", "category", c, "filename", filename, "pages", len(pages))
	}
	return inserted, nil
}

// Search returns every page whose text or filename contains substring,
// ignoring case. Both sides are folded by the database's LOWER, so an
// exact-case occurrence always matches even where LOWER leaves non-ASCII
// letters alone. A nil scope searches all partitions. Results are ordered by
// category, filename, page number and insertion order.
func (s *Store) Search(ctx context.Context, scope *category.Category, substring string) ([]Match, error) {
	cats := category.All()
	if scope != nil {
		if err := checkCategory(*scope); err != nil {
			return nil, err
		}
		cats = []category.Category{*scope}
	}

	pattern := "%" + escapeLike(substring) + "%"
	parts := make([]string, 0, len(cats))
	args := make([]any, 0, 2*len(cats))
	for _, c := range cats {
		parts = append(parts, `SELECT filename, category, page_number, id FROM `+c.Table()+
			` WHERE LOWER(text) LIKE LOWER(?) ESCAPE '\' OR LOWER(filename) LIKE LOWER(?) ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	query := s.db.Rebind(strings.Join(parts, " UNION ALL ") + ` ORDER BY category, filename, page_number, id`)

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching pages: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m   Match
			cat string
			id  int64
		)
		if err := rows.Scan(&m.Filename, &cat, &m.PageNumber, &id); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if m.Category, err = category.Parse(cat); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// FirstPages lists each distinct filename that has a page 1, ordered by
// category then filename. A filename stored in several categories is listed
// once, under the first category in that order.
func (s *Store) FirstPages(ctx context.Context) ([]Entry, error) {
	parts := make([]string, 0, len(category.All()))
	for _, c := range category.All() {
		parts = append(parts, `SELECT filename, category FROM `+c.Table()+` WHERE page_number = 1`)
	}
	query := strings.Join(parts, " UNION ") + ` ORDER BY category, filename`

	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing first pages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	seen := make(map[string]bool)
	for rows.Next() {
		var (
			e   Entry
			cat string
		)
		if err := rows.Scan(&e.Filename, &cat); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if e.Category, err = category.Parse(cat); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if seen[e.Filename] {
			continue
		}
		seen[e.Filename] = true
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// CountPages returns the number of page rows for (c, filename), or for the
// whole partition when filename is empty.
func (s *Store) CountPages(ctx context.Context, c category.Category, filename string) (int, error) {
	if err := checkCategory(c); err != nil {
		return 0, err
	}
	query := `SELECT COUNT(*) FROM ` + c.Table()
	var args []any
	if filename != "" {
		query += ` WHERE filename = ?`
		args = append(args, filename)
	}
	var n int
	if err := s.db.DB.QueryRowContext(ctx, s.db.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
