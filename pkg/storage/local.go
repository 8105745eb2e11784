package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects under a directory on disk; gin serves the
// directory statically at baseURL.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) file(bucket, objectPath string) (string, string, error) {
	p, err := cleanPath(objectPath)
	if err != nil {
		return "", "", err
	}
	b, err := cleanPath(bucket)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(b), filepath.FromSlash(p)), p, nil
}

func (s *LocalStore) Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (string, error) {
	name, p, err := s.file(bucket, objectPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return p, nil
}

func (s *LocalStore) Remove(ctx context.Context, bucket string, objectPaths []string) error {
	var errs []error
	for _, op := range objectPaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, _, err := s.file(bucket, op)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *LocalStore) URL(bucket, objectPath string) string {
	p, err := cleanPath(objectPath)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + bucket + "/" + p
}
