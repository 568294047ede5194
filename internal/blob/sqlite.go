package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const blobSchema = `
CREATE TABLE IF NOT EXISTS blobs (
	bucket       TEXT NOT NULL,
	key          TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	data         BLOB NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (bucket, key)
);`

// SQLiteStore keeps objects as rows of a single table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating when needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("blob sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("blob sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(blobSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blob sqlite: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE bucket = ? AND key = ?`, bucket, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob sqlite: get: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO blobs (bucket, key, content_type, data, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(bucket, key) DO UPDATE SET content_type = excluded.content_type, data = excluded.data, updated_at = excluded.updated_at`,
		bucket, key, contentType, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("blob sqlite: put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
