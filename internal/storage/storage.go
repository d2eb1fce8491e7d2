// Package storage puts interview recordings into object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/zulandar/proctor/internal/config"
)

// ObjectStore stores bytes under a key and returns a reference to them.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// New builds the ObjectStore selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.Dir, cfg.BaseURL), nil
	case "s3":
		return NewS3Store(ctx, cfg.Bucket, cfg.Region)
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", cfg.Backend)
	}
}

// extensions maps recording content types to file extensions.
var extensions = map[string]string{
	"video/webm": ".webm",
	"audio/webm": ".webm",
	"video/mp4":  ".mp4",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
}

// RecordingKey returns the object key for an interview's recording.
func RecordingKey(prefix, interviewID, contentType string) string {
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))]
	if !ok {
		ext = ".bin"
	}
	return path.Join(prefix, interviewID, "recording"+ext)
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	clean := path.Clean(key)
	if strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("storage: key %q escapes the store", key)
	}
	return nil
}
