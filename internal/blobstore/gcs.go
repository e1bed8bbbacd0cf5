package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/opsportal/internal/gcp"
	"google.golang.org/api/iterator"
)

// GCSStore implements Store on a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string // Optional object name prefix (e.g., "portal/")
	base   publicBase
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
	// PublicBaseURL defaults to https://storage.googleapis.com/<bucket>/<prefix>.
	PublicBaseURL string
}

// NewGCSStore creates a GCS-backed store using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("GCS bucket must be set")
	}
	client, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket + "/" + cfg.Prefix
	}
	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		base:   newPublicBase(base),
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, pathname string, r io.Reader, opts PutOptions) (Object, error) {
	attrs, err := gcp.WriteObject(ctx, s.client.Bucket(s.bucket), s.prefix+pathname, r, gcp.WriteOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		OnlyIfAbsent: !opts.Overwrite,
	})
	if errors.Is(err, gcp.ErrObjectExists) {
		return Object{}, fmt.Errorf("%s: %w", pathname, ErrExists)
	}
	if err != nil {
		return Object{}, err
	}
	return s.object(attrs), nil
}

func (s *GCSStore) Get(ctx context.Context, pathname string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.prefix + pathname).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", pathname, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", pathname, err)
	}
	return reader, nil
}

func (s *GCSStore) Delete(ctx context.Context, pathname string) error {
	err := s.client.Bucket(s.bucket).Object(s.prefix + pathname).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", pathname, ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("gcs delete failed for %s: %w", pathname, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})

	var objects []Object
	for limit <= 0 || len(objects) < limit {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", s.bucket, err)
		}
		objects = append(objects, s.object(attrs))
	}
	return objects, nil
}

func (s *GCSStore) URL(pathname string) string { return s.base.url(pathname) }

func (s *GCSStore) Pathname(rawURL string) (string, bool) { return s.base.pathname(rawURL) }

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) object(attrs *storage.ObjectAttrs) Object {
	pathname := attrs.Name[len(s.prefix):]
	return Object{
		Pathname:    pathname,
		URL:         s.base.url(pathname),
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		UploadedAt:  attrs.Updated,
	}
}
