package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore writes objects to a directory on disk.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore returns a store rooted at dir. References are baseURL/key
// when baseURL is set and file:// URLs otherwise.
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Put writes data to dir/key, replacing any existing object.
func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}

	dest := filepath.Join(l.dir, filepath.FromSlash(path.Clean(key)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir for %s: %w", key, err)
	}
	// Each writer gets its own temp file; the rename publishes it whole.
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: create temp for %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: commit %s: %w", key, err)
	}

	if l.baseURL != "" {
		return l.baseURL + "/" + path.Clean(key), nil
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("storage: resolve %s: %w", dest, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
