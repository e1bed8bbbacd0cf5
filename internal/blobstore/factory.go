package blobstore

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/opsportal/internal/gcp"
)

// Backend names the storage implementation selected by BLOB_BACKEND.
type Backend string

const (
	BackendGCS    Backend = "gcs"
	BackendS3     Backend = "s3"
	BackendMemory Backend = "memory"
)

// NewStoreFromEnv creates a store based on environment variables.
//
// Environment variables:
//   - BLOB_BACKEND: "gcs" (default), "s3" or "memory"
//   - BLOB_BUCKET: bucket name (required for gcs and s3)
//   - BLOB_PREFIX: optional object name prefix
//   - BLOB_PUBLIC_BASE_URL: optional override of the public URL base
//   - BLOB_S3_REGION (falls back to AWS_REGION, then us-east-1) and BLOB_S3_ENDPOINT
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	backend := Backend(gcp.GetEnv("BLOB_BACKEND", string(BackendGCS)))
	bucket := gcp.GetEnv("BLOB_BUCKET", "")
	prefix := gcp.GetEnv("BLOB_PREFIX", "")
	publicBase := gcp.GetEnv("BLOB_PUBLIC_BASE_URL", "")

	switch backend {
	case BackendGCS:
		if bucket == "" {
			return nil, fmt.Errorf("BLOB_BUCKET is required for gcs storage")
		}
		return NewGCSStore(ctx, GCSStoreConfig{Bucket: bucket, Prefix: prefix, PublicBaseURL: publicBase})
	case BackendS3:
		if bucket == "" {
			return nil, fmt.Errorf("BLOB_BUCKET is required for s3 storage")
		}
		region := gcp.GetEnv("BLOB_S3_REGION", gcp.GetEnv("AWS_REGION", "us-east-1"))
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:        bucket,
			Region:        region,
			Endpoint:      gcp.GetEnv("BLOB_S3_ENDPOINT", ""),
			Prefix:        prefix,
			PublicBaseURL: publicBase,
		})
	case BackendMemory:
		return NewMemoryStore(publicBase), nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", backend)
	}
}
