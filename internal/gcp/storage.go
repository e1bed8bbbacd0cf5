package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectExists is returned by WriteObject when OnlyIfAbsent is set and the object is present.
var ErrObjectExists = errors.New("object already exists")

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// WriteOptions controls how WriteObject creates the object.
type WriteOptions struct {
	ContentType  string
	CacheControl string
	OnlyIfAbsent bool
}

// WriteObject streams r into a GCS object and returns the attributes of the written object.
// With OnlyIfAbsent the write is conditional on the object not existing yet.
func WriteObject(ctx context.Context, bucket *storage.BucketHandle, objectName string, r io.Reader, opts WriteOptions) (*storage.ObjectAttrs, error) {
	obj := bucket.Object(objectName)
	if opts.OnlyIfAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = opts.ContentType
	writer.CacheControl = opts.CacheControl

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%s: %w", objectName, ErrObjectExists)
		}
		slog.Error("Failed to copy content to GCS object", "object", objectName, "error", err)
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%s: %w", objectName, ErrObjectExists)
		}
		slog.Error("Failed to close GCS writer", "object", objectName, "error", err)
		return nil, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return writer.Attrs(), nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
