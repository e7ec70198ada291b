// Package storage loads packaged book files by their catalog path. The
// backend is chosen once at start-up; callers only see Loader.
package storage

import (
	"context"
	"fmt"
	"strings"

	"bookgate/config"
	"bookgate/pkg/models"
)

// Loader returns the raw bytes of a packaged book file
type Loader interface {
	Load(ctx context.Context, path string) ([]byte, error)
	Kind() string
}

// NewLoader builds the backend named by cfg.Type
func NewLoader(ctx context.Context, cfg config.StorageConfig) (Loader, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocalLoader(cfg.Local.Root)
	case "s3":
		return NewS3Loader(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func notFound(path string, err error) error {
	return &models.Error{
		Code:    models.ErrCodeObjectNotFound,
		Message: fmt.Sprintf("object %q not found", path),
		Err:     fmt.Errorf("%w: %v", models.ErrObjectNotFound, err),
	}
}

func storageFailure(path string, err error) error {
	return &models.Error{
		Code:    models.ErrCodeStorageFailed,
		Message: fmt.Sprintf("failed to load %q", path),
		Err:     fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err),
	}
}
