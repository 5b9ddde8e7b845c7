package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PhotoStore persists evidence photos on disk under a base directory. The
// violation engine only ever handles the opaque storage key; photo bytes are
// read exclusively by the download endpoint.
type PhotoStore struct {
	baseDir string
}

// NewPhotoStore ensures the base directory exists and returns a handle.
func NewPhotoStore(baseDir string) (*PhotoStore, error) {
	if baseDir == "" {
		baseDir = "./evidence"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &PhotoStore{baseDir: baseDir}, nil
}

// SaveStream copies photo bytes into the file named by the storage key.
func (s *PhotoStore) SaveStream(key string, r io.Reader) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare evidence directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write evidence stream: %w", err)
	}
	return key, nil
}

// Open returns a read-only handle for the stored photo.
func (s *PhotoStore) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open evidence file: %w", err)
	}
	return file, nil
}

// Delete removes a stored photo if present.
func (s *PhotoStore) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete evidence file: %w", err)
	}
	return nil
}

func (s *PhotoStore) resolve(key string) string {
	cleaned := filepath.Clean("/" + key)
	return filepath.Join(s.baseDir, cleaned)
}
