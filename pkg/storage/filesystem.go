package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys or categories that would escape the base directory.
var ErrInvalidKey = errors.New("invalid blob key")

// LocalStorage persists uploaded blobs on disk as <baseDir>/<category>/<key>.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Store copies r into a fresh file under category and returns its key. The
// key is a random UUID carrying the extension of originalName.
func (s *LocalStorage) Store(category, originalName string, r io.Reader) (string, error) {
	if err := validSegment(category); err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}

	key := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(dir, key)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close blob: %w", err)
	}
	return key, nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalStorage) Open(key, category string) (*os.File, error) {
	path, err := s.resolve(key, category)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Delete removes a stored blob. Missing blobs are not an error.
func (s *LocalStorage) Delete(key, category string) error {
	path, err := s.resolve(key, category)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Path exposes the on-disk location of a blob.
func (s *LocalStorage) Path(key, category string) string {
	path, _ := s.resolve(key, category)
	return path
}

func (s *LocalStorage) resolve(key, category string) (string, error) {
	if err := validSegment(category); err != nil {
		return "", err
	}
	if err := validSegment(key); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, category, key), nil
}

func validSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, segment)
	}
	return nil
}
