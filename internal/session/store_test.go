package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgnsrekt/threads_agent/internal/blob"
	"github.com/google/go-cmp/cmp"
)

type failingBlobs struct {
	getErr error
	putErr error
	puts   int
}

func (f *failingBlobs) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	return nil, f.getErr
}

func (f *failingBlobs) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	f.puts++
	return f.putErr
}

func newFSSessionStore(t *testing.T) (*Store, *blob.FSStore) {
	t.Helper()
	fs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() = %v", err)
	}
	return NewStore(fs, "threads-shokunin-sessions", "threads_session.json"), fs
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newFSSessionStore(t)

	tests := []struct {
		name  string
		state State
	}{
		{name: "empty cookie list", state: State{}},
		{
			name: "cookies",
			state: State{Cookies: []Cookie{
				{Name: "sessionid", Value: "abc", Domain: ".threads.net", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true, SameSite: "Lax"},
				{Name: "csrftoken", Value: "x", Domain: ".threads.net", Path: "/", Expires: -1, Secure: true, SameSite: "None"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Save(ctx, tt.state); err != nil {
				t.Fatalf("Save() = %v", err)
			}
			got, ok := store.Load(ctx)
			if !ok {
				t.Fatalf("Load() ok = false; want true")
			}
			if diff := cmp.Diff(tt.state.normalized(), got); diff != "" {
				t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSavePersistsEmptyOriginsArray(t *testing.T) {
	ctx := context.Background()
	store, fs := newFSSessionStore(t)
	if err := store.Save(ctx, State{Cookies: []Cookie{{Name: "a"}}}); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	raw, err := fs.Get(ctx, "threads-shokunin-sessions", "threads_session.json")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if got := string(doc["origins"]); got != "[]" {
		t.Fatalf("origins = %s; want []", got)
	}
	ct, err := fs.ContentType("threads-shokunin-sessions", "threads_session.json")
	if err != nil || ct != "application/json" {
		t.Fatalf("ContentType() = %q, %v; want application/json", ct, err)
	}
}

func TestLoadDegradesToAbsent(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	unreachable := NewStore(&failingBlobs{getErr: errors.New("dial tcp: connection refused")}, "b", "k")
	if _, ok := unreachable.Load(ctx); ok {
		t.Fatalf("Load(unreachable) ok = true; want false")
	}
	if !strings.Contains(buf.String(), "session load failed") {
		t.Fatalf("expected warning log, got %q", buf.String())
	}

	store, fs := newFSSessionStore(t)
	if _, ok := store.Load(ctx); ok {
		t.Fatalf("Load(empty) ok = true; want false")
	}
	if err := fs.Put(ctx, "threads-shokunin-sessions", "threads_session.json", []byte("{not json"), "application/json"); err != nil {
		t.Fatalf("Put() = %v", err)
	}
	if _, ok := store.Load(ctx); ok {
		t.Fatalf("Load(malformed) ok = true; want false")
	}
	if !strings.Contains(buf.String(), "session payload malformed") {
		t.Fatalf("expected malformed log, got %q", buf.String())
	}
}

func TestSaveFailureIsReturned(t *testing.T) {
	blobs := &failingBlobs{putErr: errors.New("permission denied")}
	store := NewStore(blobs, "b", "k")
	if err := store.Save(context.Background(), State{}); err == nil {
		t.Fatalf("Save() = nil; want error")
	}
	if blobs.puts != 1 {
		t.Fatalf("puts = %d; want 1", blobs.puts)
	}
}
