package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS serves objects from a local directory.
type FS struct {
	root string
}

func NewFS(root string) *FS {
	return &FS{root: root}
}

func (s *FS) Open(ctx context.Context, locator string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(locator, "://") {
		return nil, fmt.Errorf("%w: %q is not a local locator", ErrNotFound, locator)
	}
	key, err := cleanKey(locator)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrAccessDenied, key)
		}
		return nil, fmt.Errorf("failed to open asset %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat asset %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, key)
	}
	return &Object{Body: f, Size: info.Size()}, nil
}
