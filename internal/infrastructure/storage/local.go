package storage

import (
	"context"
	"os"
	"path/filepath"
)

// LocalStorage implements ArtifactStore using the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem artifact store rooted at
// basePath.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// GetContent retrieves raw artifact content from the local filesystem.
func (s *LocalStorage) GetContent(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// PutContent stores raw artifact content to the local filesystem.
func (s *LocalStorage) PutContent(ctx context.Context, path string, content []byte, contentType string) error {
	fullPath := s.fullPath(path)

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	return os.WriteFile(fullPath, content, 0644)
}

// Exists checks if an artifact exists.
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(s.fullPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes an artifact.
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	return os.Remove(s.fullPath(path))
}

func (s *LocalStorage) fullPath(path string) string {
	if s.basePath == "" {
		return path
	}
	return filepath.Join(s.basePath, path)
}
