package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/threads_agent/internal/blob"
)

const contentTypeJSON = "application/json"

// Store reads and writes the session slot at a fixed bucket and key.
type Store struct {
	blobs  blob.Store
	bucket string
	key    string
}

func NewStore(blobs blob.Store, bucket, key string) *Store {
	return &Store{blobs: blobs, bucket: bucket, key: key}
}

// Load returns the persisted state. Any failure, including a malformed
// payload, is logged and reported as no session.
func (s *Store) Load(ctx context.Context) (State, bool) {
	data, err := s.blobs.Get(ctx, s.bucket, s.key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			slog.Info("session slot empty", "bucket", s.bucket, "key", s.key)
		} else {
			slog.Warn("session load failed", "bucket", s.bucket, "key", s.key, "error", err)
		}
		return State{}, false
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("session payload malformed", "bucket", s.bucket, "key", s.key, "error", err)
		return State{}, false
	}
	slog.Info("session loaded", "cookies", len(st.Cookies))
	return st.normalized(), true
}

// Save overwrites the slot. Failures are logged and returned; callers treat
// them as non-fatal.
func (s *Store) Save(ctx context.Context, st State) error {
	data, err := json.MarshalIndent(st.normalized(), "", "  ")
	if err != nil {
		slog.Warn("session marshal failed", "error", err)
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.blobs.Put(ctx, s.bucket, s.key, data, contentTypeJSON); err != nil {
		slog.Warn("session save failed", "bucket", s.bucket, "key", s.key, "error", err)
		return fmt.Errorf("session: save: %w", err)
	}
	slog.Info("session saved", "bucket", s.bucket, "key", s.key, "cookies", len(st.Cookies))
	return nil
}
