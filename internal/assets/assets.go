// Package assets reads item asset bytes from an object store and packages
// them into download archives.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rkm/stac-catalog/internal/config"
)

// Drivers accepted by New.
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("asset not found")
	// ErrAccessDenied is returned when the store refuses access to an object.
	ErrAccessDenied = errors.New("asset access denied")
)

// Object is an open object. Callers must close Body.
type Object struct {
	Body io.ReadCloser
	// Size is -1 when unknown.
	Size int64
}

// Store opens objects by locator. Locators are either store-relative keys
// ("sentinel-1/S1A_0001.tif") or s3:// URLs.
type Store interface {
	Open(ctx context.Context, locator string) (*Object, error)
}

// New builds the store selected by cfg.
func New(ctx context.Context, cfg config.AssetsConfig) (Store, error) {
	switch cfg.Driver {
	case DriverFS, "":
		return NewFS(cfg.Dir), nil
	case DriverS3:
		return NewS3(ctx, S3Options{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown assets driver %q", cfg.Driver)
	}
}

// cleanKey normalizes a store-relative key. Keys escaping the store root are
// refused.
func cleanKey(locator string) (string, error) {
	key := strings.TrimLeft(strings.ReplaceAll(locator, "\\", "/"), "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty locator", ErrNotFound)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q leaves the asset root", ErrAccessDenied, locator)
		}
	}
	return key, nil
}
