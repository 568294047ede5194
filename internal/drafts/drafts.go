// Package drafts keeps the queue of posts waiting to be relayed into a tab.
package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

const draftSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	scheduled_time TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	seq            INTEGER NOT NULL
);`

// Draft is one queued post.
type Draft struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	ScheduledTime string    `json:"scheduledTime,omitempty"`
	Category      string    `json:"category,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store is a sqlite-backed draft queue. Newest drafts are listed first.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Open opens (creating when needed) the draft database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("drafts: mkdir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("drafts: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(draftSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("drafts: schema: %w", err)
	}
	return &Store{db: db, now: time.Now, newID: uuid.NewString}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add queues items ahead of the existing drafts, keeping their given order.
// Items without text are skipped. The stored drafts are returned.
func (s *Store) Add(ctx context.Context, items []Draft) ([]Draft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("drafts: begin: %w", err)
	}
	defer tx.Rollback()

	var top int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM drafts`).Scan(&top); err != nil {
		return nil, fmt.Errorf("drafts: add: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	kept := make([]Draft, 0, len(items))
	for _, d := range items {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		d.ID = s.newID()
		d.CreatedAt = now
		kept = append(kept, d)
	}
	// The first item gets the highest seq so it lists first.
	for i, d := range kept {
		seq := top + int64(len(kept)-i)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO drafts (id, text, scheduled_time, category, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.Text, d.ScheduledTime, d.Category, d.CreatedAt.Unix(), seq)
		if err != nil {
			return nil, fmt.Errorf("drafts: add: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("drafts: commit: %w", err)
	}
	return kept, nil
}

// List returns every draft, newest first.
func (s *Store) List(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, scheduled_time, category, created_at FROM drafts ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("drafts: list: %w", err)
	}
	defer rows.Close()

	out := []Draft{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("drafts: list: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drafts: list: %w", err)
	}
	return out, nil
}

// Get returns the draft with id.
func (s *Store) Get(ctx context.Context, id string) (Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, scheduled_time, category, created_at FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, apperr.New(apperr.CodeNotFound, "draft not found: "+id, nil)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("drafts: get: %w", err)
	}
	return d, nil
}

// Delete removes the draft with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("drafts: delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.CodeNotFound, "draft not found: "+id, nil)
	}
	return nil
}

// Clear empties the queue and reports how many drafts were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts`)
	if err != nil {
		return 0, fmt.Errorf("drafts: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(sc scanner) (Draft, error) {
	var (
		d       Draft
		created int64
	)
	if err := sc.Scan(&d.ID, &d.Text, &d.ScheduledTime, &d.Category, &created); err != nil {
		return Draft{}, err
	}
	d.CreatedAt = time.Unix(created, 0).UTC()
	return d, nil
}
