// Package filestore keeps uploaded bill documents on local disk, keyed by
// an opaque reference that survives in the bills table.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes uploads under a single base directory. References are
// relative paths of the form "ab/<uuid><ext>", sharded by the first two
// characters of the id to keep directories small.
type Store struct {
	baseDir string
}

func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("filestore: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes data and returns the reference to read it back with. The
// original filename contributes only its extension.
func (s *Store) Save(_ context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	id := uuid.NewString()
	ref := filepath.Join(id[:2], id+ext)
	full := filepath.Join(s.baseDir, ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("filestore: create shard directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("filestore: write %s: %w", ref, err)
	}
	return filepath.ToSlash(ref), nil
}

// Open reads a stored document back. Refs are validated against path
// traversal before touching the filesystem.
func (s *Store) Open(_ context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("filestore: invalid ref %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, clean))
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", ref, err)
	}
	return data, nil
}
