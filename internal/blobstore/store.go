// Package blobstore holds the object storage behind the document store and the file
// upload service. Objects are addressed by a slash separated pathname and exposed under
// a stable public URL.
package blobstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotExist is returned when no object lives at the pathname.
	ErrNotExist = errors.New("blob does not exist")
	// ErrExists is returned by a create-only Put when the pathname is taken.
	ErrExists = errors.New("blob already exists")
)

// Object describes one stored blob.
type Object struct {
	Pathname    string
	URL         string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

// PutOptions controls a single write.
type PutOptions struct {
	ContentType  string
	CacheControl string
	// Overwrite replaces an existing object. Without it Put fails with ErrExists.
	Overwrite bool
}

// Store is the contract shared by the GCS, S3 and in-memory backends.
type Store interface {
	Put(ctx context.Context, pathname string, r io.Reader, opts PutOptions) (Object, error)
	Get(ctx context.Context, pathname string) (io.ReadCloser, error)
	Delete(ctx context.Context, pathname string) error
	// List returns at most limit objects whose pathname starts with prefix.
	List(ctx context.Context, prefix string, limit int) ([]Object, error)
	// URL is the public address of pathname.
	URL(pathname string) string
	// Pathname maps a public URL back to the pathname it was issued for.
	Pathname(rawURL string) (string, bool)
}

// publicBase keeps the URL <-> pathname mapping identical across backends.
type publicBase string

func newPublicBase(base string) publicBase {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return publicBase(base)
}

func (b publicBase) url(pathname string) string {
	segments := strings.Split(pathname, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return string(b) + strings.Join(segments, "/")
}

func (b publicBase) pathname(rawURL string) (string, bool) {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	rest, ok := strings.CutPrefix(rawURL, string(b))
	if !ok || rest == "" {
		return "", false
	}
	p, err := url.PathUnescape(rest)
	if err != nil || strings.Contains(p, "..") {
		return "", false
	}
	return p, true
}
