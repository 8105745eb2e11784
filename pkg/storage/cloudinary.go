package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStore maps (bucket, path) onto cloudinary public ids
// "<bucket>/<path without extension>".
type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryStore(cloudinaryURL string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("storage: init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld}, nil
}

func publicID(bucket, objectPath string) (string, error) {
	p, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	p = strings.TrimSuffix(p, path.Ext(p))
	return bucket + "/" + p, nil
}

func (s *CloudinaryStore) Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (string, error) {
	id, err := publicID(bucket, objectPath)
	if err != nil {
		return "", err
	}
	res, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:  id,
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("storage: cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("storage: cloudinary upload: %s", res.Error.Message)
	}
	p, _ := cleanPath(objectPath)
	return p, nil
}

func (s *CloudinaryStore) Remove(ctx context.Context, bucket string, objectPaths []string) error {
	var errs []error
	for _, op := range objectPaths {
		id, err := publicID(bucket, op)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: id})
		if err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", id, err))
			continue
		}
		if res.Error.Message != "" {
			errs = append(errs, fmt.Errorf("destroy %s: %s", id, res.Error.Message))
		}
	}
	return errors.Join(errs...)
}

func (s *CloudinaryStore) URL(bucket, objectPath string) string {
	id, err := publicID(bucket, objectPath)
	if err != nil {
		return ""
	}
	img, err := s.cld.Image(id)
	if err != nil {
		return ""
	}
	u, err := img.String()
	if err != nil {
		return ""
	}
	return u
}
