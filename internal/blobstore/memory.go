package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps blobs in process memory. It backs local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	base  publicBase
	blobs map[string]memoryBlob
	now   func() time.Time
}

type memoryBlob struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

// NewMemoryStore creates an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "https://blob.local/"
	}
	return &MemoryStore{
		base:  newPublicBase(baseURL),
		blobs: make(map[string]memoryBlob),
		now:   time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, pathname string, r io.Reader, opts PutOptions) (Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("failed to read blob body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[pathname]; ok && !opts.Overwrite {
		return Object{}, fmt.Errorf("%s: %w", pathname, ErrExists)
	}
	b := memoryBlob{data: data, contentType: opts.ContentType, uploadedAt: s.now()}
	s.blobs[pathname] = b
	return s.object(pathname, b), nil
}

func (s *MemoryStore) Get(ctx context.Context, pathname string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[pathname]
	if !ok {
		return nil, fmt.Errorf("%s: %w", pathname, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, pathname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[pathname]; !ok {
		return fmt.Errorf("%s: %w", pathname, ErrNotExist)
	}
	delete(s.blobs, pathname)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	objects := make([]Object, 0, len(names))
	for _, name := range names {
		objects = append(objects, s.object(name, s.blobs[name]))
	}
	return objects, nil
}

func (s *MemoryStore) URL(pathname string) string { return s.base.url(pathname) }

func (s *MemoryStore) Pathname(rawURL string) (string, bool) { return s.base.pathname(rawURL) }

func (s *MemoryStore) object(pathname string, b memoryBlob) Object {
	return Object{
		Pathname:    pathname,
		URL:         s.base.url(pathname),
		Size:        int64(len(b.data)),
		ContentType: b.contentType,
		UploadedAt:  b.uploadedAt,
	}
}
