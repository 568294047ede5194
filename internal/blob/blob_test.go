package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewFSStore() = %v", err)
	}
	sq, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "db", "blobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() = %v", err)
	}
	t.Cleanup(func() {
		if err := sq.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
	return map[string]Store{"fs": fs, "sqlite": sq}
}

func TestStoreRoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "sessions", "threads_session.json"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) = %v; want ErrNotFound", err)
			}

			if err := s.Put(ctx, "sessions", "threads_session.json", []byte(`{"cookies":[]}`), "application/json"); err != nil {
				t.Fatalf("Put() = %v", err)
			}
			if err := s.Put(ctx, "sessions", "threads_session.json", []byte(`{"cookies":[{"name":"a"}]}`), "application/json"); err != nil {
				t.Fatalf("Put(overwrite) = %v", err)
			}

			got, err := s.Get(ctx, "sessions", "threads_session.json")
			if err != nil {
				t.Fatalf("Get() = %v", err)
			}
			if !bytes.Equal(got, []byte(`{"cookies":[{"name":"a"}]}`)) {
				t.Fatalf("Get() = %s; want last written payload", got)
			}
		})
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	for name, s := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"../escape", "..", "a/b", ""} {
				if err := s.Put(ctx, "sessions", key, []byte("x"), "text/plain"); err == nil {
					t.Fatalf("Put(key=%q) = nil; want validation error", key)
				}
			}
			if _, err := s.Get(ctx, "../etc", "passwd"); err == nil {
				t.Fatalf("Get(bucket=../etc) = nil; want validation error")
			}
		})
	}
}

func TestFSStoreRecordsContentTypeAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore() = %v", err)
	}
	if err := s.Put(context.Background(), "b", "k.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Put() = %v", err)
	}

	ct, err := s.ContentType("b", "k.json")
	if err != nil {
		t.Fatalf("ContentType() = %v", err)
	}
	if ct != "application/json" {
		t.Fatalf("ContentType() = %q; want application/json", ct)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	if len(entries) != 2 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("bucket entries = %v; want object and sidecar only", names)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "s3"}); err == nil {
		t.Fatalf("Open(s3) = nil; want error")
	}
	s, err := Open(context.Background(), Options{Backend: "fs", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open(fs) = %v", err)
	}
	if _, ok := s.(*FSStore); !ok {
		t.Fatalf("Open(fs) = %T; want *FSStore", s)
	}
}
