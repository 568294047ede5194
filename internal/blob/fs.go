package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// objectMeta is the JSON sidecar stored next to every object.
type objectMeta struct {
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FSStore keeps objects under dir/bucket/key with a .meta.json sidecar.
type FSStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFSStore creates an FSStore and ensures the directory exists.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob fs: mkdir %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob fs: read: %w", err)
	}
	return data, nil
}

// Put writes the object via a temp file and rename so readers never observe
// a partial payload.
func (s *FSStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucketDir := filepath.Join(s.dir, bucket)
	if err := os.MkdirAll(bucketDir, 0o755); err != nil {
		return fmt.Errorf("blob fs: mkdir bucket: %w", err)
	}

	objPath := filepath.Join(bucketDir, key)
	tmp, err := os.CreateTemp(bucketDir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("blob fs: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("blob fs: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("blob fs: close: %w", err)
	}
	if err := os.Rename(tmpPath, objPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("blob fs: rename: %w", err)
	}

	meta, err := json.MarshalIndent(objectMeta{
		ContentType: contentType,
		SizeBytes:   len(data),
		UpdatedAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("blob fs: marshal meta: %w", err)
	}
	if err := os.WriteFile(objPath+".meta.json", meta, 0o644); err != nil {
		return fmt.Errorf("blob fs: write meta: %w", err)
	}
	return nil
}

// ContentType returns the content type recorded for an object.
func (s *FSStore) ContentType(bucket, key string) (string, error) {
	if err := validate(bucket, key); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, bucket, key+".meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("blob fs: read meta: %w", err)
	}
	var meta objectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("blob fs: unmarshal meta: %w", err)
	}
	return meta.ContentType, nil
}
