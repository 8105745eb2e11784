// Package storage is the object storage port used for item images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Vasilion/UnyX-Social/config"
)

// ErrInvalidPath is returned for empty or escaping object paths.
var ErrInvalidPath = errors.New("storage: invalid object path")

// ObjectStore accepts uploads and removals of binary objects addressed by
// (bucket, path) and builds retrievable URLs for stored paths.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (string, error)
	Remove(ctx context.Context, bucket string, objectPaths []string) error
	URL(bucket, objectPath string) string
}

// New builds the store selected by cfg.Driver.
func New(cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "local":
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL), nil
	case "cloudinary":
		return NewCloudinaryStore(cfg.CloudinaryURL)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}

// cleanPath normalises an object path and rejects traversal outside the bucket.
func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "" || p == "." {
		return "", ErrInvalidPath
	}
	return p, nil
}
