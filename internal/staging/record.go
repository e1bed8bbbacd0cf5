package staging

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/opsportal/internal/models"
)

// MaxFileSize mirrors the upload function's cap so oversize files fail before upload.
const MaxFileSize = 4 << 20

// Record is a staged item. RecordKey is the user-facing identifier that must be unique
// within the pending list; WithID returns a copy carrying a new id.
type Record[T any] interface {
	RecordID() string
	RecordKey() string
	WithID(id string) T
}

// attachable records carry an uploaded file.
type attachable[T any] interface {
	Attachment() models.Attachment
	WithAttachment(a models.Attachment) T
}

// Remote is the document store as seen by a repository.
type Remote interface {
	Fetch(ctx context.Context, key string, dst any) error
	Save(ctx context.Context, key string, v any) (string, error)
}

// FileService stores and removes attachments.
type FileService interface {
	Upload(ctx context.Context, folder, jobID, filename string, body io.Reader) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
}

// Register is the spreadsheet job register.
type Register interface {
	Lookup(ctx context.Context, code string) ([]models.JobEntry, error)
	Exists(ctx context.Context, code string) (bool, error)
	BulkAdd(ctx context.Context, entries []models.JobEntry) error
}

// FileUpload is a file picked by the user. Size may be -1 when unknown.
type FileUpload struct {
	Name string
	Size int64
	Body io.Reader
}

func (f FileUpload) validate() error {
	if f.Body == nil || strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("file: %w", ErrMissingKey)
	}
	if f.Size > MaxFileSize {
		return fmt.Errorf("%s: %w", f.Name, ErrFileTooLarge)
	}
	return nil
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

var ids = &idSource{now: time.Now}

// idSource hands out millisecond timestamps, bumped so that ids stay unique when two
// records are created within the same millisecond.
type idSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return strconv.FormatInt(ms, 10)
}
