package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalLoader reads book files below a root directory
type LocalLoader struct {
	root string
}

// NewLocalLoader roots the loader at dir, which must exist
func NewLocalLoader(dir string) (*LocalLoader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", abs)
	}
	return &LocalLoader{root: abs}, nil
}

func (l *LocalLoader) Kind() string { return "local" }

// Root returns the absolute root directory
func (l *LocalLoader) Root() string { return l.root }

// Load reads root/path. Catalog paths are slash separated; a leading slash
// is tolerated but anything resolving outside root is refused.
func (l *LocalLoader) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel := filepath.FromSlash(strings.TrimLeft(path, "/"))
	if !filepath.IsLocal(rel) {
		return nil, storageFailure(path, fmt.Errorf("path escapes storage root"))
	}

	data, err := os.ReadFile(filepath.Join(l.root, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(path, err)
		}
		return nil, storageFailure(path, err)
	}
	return data, nil
}
