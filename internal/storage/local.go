package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes objects under a directory served by the HTTP server.
type LocalStore struct {
	basePath string
	baseURL  string
}

// NewLocalStore creates the directory if needed. baseURL is the public prefix
// the directory is served under, e.g. "http://localhost:8083/uploads".
func NewLocalStore(basePath, baseURL string) (*LocalStore, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid upload path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{basePath: absPath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the absolute directory objects are written to.
func (s *LocalStore) Dir() string {
	return s.basePath
}

// Store writes data to a new file and returns its public URL.
func (s *LocalStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := (Upload{Data: data, ContentType: contentType}).Validate(); err != nil {
		return "", err
	}
	key, err := newKey(contentType)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.basePath, key)); err != nil {
		return "", fmt.Errorf("rename upload: %w", err)
	}
	return s.baseURL + "/" + key, nil
}
