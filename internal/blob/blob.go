// Package blob is a minimal bucket/key object store with local file, SQLite
// and Google Cloud Storage backends.
package blob

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("blob: object not found")

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// Store reads and writes whole objects.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

func validateName(kind, v string) error {
	if !nameRe.MatchString(v) || v == "." || v == ".." {
		return fmt.Errorf("blob: invalid %s name: %q", kind, v)
	}
	return nil
}

func validate(bucket, key string) error {
	if err := validateName("bucket", bucket); err != nil {
		return err
	}
	return validateName("key", key)
}

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Dir        string
	SQLitePath string
}

// Open constructs the backend named by opts.Backend ("fs", "sqlite" or "gcs").
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case "", "fs":
		s, err = NewFSStore(opts.Dir)
	case "sqlite":
		s, err = OpenSQLiteStore(opts.SQLitePath)
	case "gcs":
		s, err = NewGCSStore(ctx)
	default:
		return nil, fmt.Errorf("blob: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
