package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements Store using AWS S3 or an S3 compatible endpoint.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	base   publicBase
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket        string
	Region        string
	Endpoint      string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix        string
	PublicBaseURL string
}

// NewS3Store creates a new S3-backed store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket must be set")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	base := cfg.PublicBaseURL
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket + "/" + cfg.Prefix
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, cfg.Prefix)
		}
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		base:   newPublicBase(base),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, pathname string, r io.Reader, opts PutOptions) (Object, error) {
	// The SDK needs a seekable body to sign the payload; uploads are capped well below
	// the size where buffering matters.
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("failed to read blob body: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + pathname),
		Body:   bytes.NewReader(data),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if !opts.Overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return Object{}, fmt.Errorf("%s: %w", pathname, ErrExists)
		}
		return Object{}, fmt.Errorf("s3 put failed for %s: %w", pathname, err)
	}

	return Object{
		Pathname:    pathname,
		URL:         s.base.url(pathname),
		Size:        int64(len(data)),
		ContentType: opts.ContentType,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, pathname string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + pathname),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", pathname, ErrNotExist)
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", pathname, err)
	}
	return result.Body, nil
}

// Delete removes the object. S3 does not report missing keys on delete, so this never
// returns ErrNotExist.
func (s *S3Store) Delete(ctx context.Context, pathname string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + pathname),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", pathname, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	var objects []Object
	for paginator.HasMorePages() && (limit <= 0 || len(objects) < limit) {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			if limit > 0 && len(objects) >= limit {
				break
			}
			pathname := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			objects = append(objects, Object{
				Pathname:   pathname,
				URL:        s.base.url(pathname),
				Size:       aws.ToInt64(obj.Size),
				UploadedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *S3Store) URL(pathname string) string { return s.base.url(pathname) }

func (s *S3Store) Pathname(rawURL string) (string, bool) { return s.base.pathname(rawURL) }
