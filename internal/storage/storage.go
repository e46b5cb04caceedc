// Package storage abstracts the blob store recordings are downloaded
// from.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/calltrail/calltrail/internal/errs"
)

// Backend reads stored recording bytes by key.
type Backend interface {
	ReadBytes(ctx context.Context, key string) ([]byte, error)
}

// FSBackend serves blobs from a directory under the data dir.
type FSBackend struct {
	root string
}

// NewFSBackend creates a filesystem-backed Backend rooted at dir.
func NewFSBackend(dir string) (*FSBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FSBackend{root: abs}, nil
}

// ReadBytes implements Backend. Keys are relative paths; anything that
// escapes the root is treated as not found.
func (b *FSBackend) ReadBytes(_ context.Context, key string) ([]byte, error) {
	full := filepath.Join(b.root, filepath.Clean("/"+key))
	if !strings.HasPrefix(full, b.root+string(os.PathSeparator)) {
		return nil, errs.NotFound("object", key)
	}

	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errs.NotFound("object", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}
