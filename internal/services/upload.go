package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/gcp"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxUploadBytes is the largest body the upload function accepts.
const MaxUploadBytes = 4 << 20

// UploadConfig holds configuration for the upload service.
type UploadConfig struct {
	MaxBytes       int64
	AllowedFolders []string
}

// UploadFunction stores attachments under <folder>/<jobId>/<filename>.
type UploadFunction struct {
	store  blobstore.Store
	config UploadConfig
	now    func() time.Time
}

// UploadRequest is one upload, decoded from the query string and the raw request body.
type UploadRequest struct {
	Filename      string
	JobID         string
	Folder        string
	ContentType   string
	ContentLength int64
	Body          io.Reader
}

func loadUploadConfig() UploadConfig {
	maxBytes, err := strconv.ParseInt(gcp.GetEnv("UPLOAD_MAX_BYTES", ""), 10, 64)
	if err != nil || maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	return UploadConfig{
		MaxBytes:       maxBytes,
		AllowedFolders: strings.Split(gcp.GetEnv("UPLOAD_FOLDERS", "CVHC,MBL,DONE"), ","),
	}
}

// NewUpload creates an UploadFunction on the blob backend selected by the environment.
func NewUpload(ctx context.Context) (*UploadFunction, error) {
	store, err := blobstore.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	config := loadUploadConfig()
	slog.Info("Upload function initialized.", "maxBytes", config.MaxBytes, "folders", config.AllowedFolders)
	return NewUploadWithBackend(store, config), nil
}

// NewUploadWithBackend creates an UploadFunction on an existing blob store.
func NewUploadWithBackend(store blobstore.Store, config UploadConfig) *UploadFunction {
	return &UploadFunction{store: store, config: config, now: time.Now}
}

// Process validates and stores one upload. A name that is already taken gets a random
// suffix so an earlier attachment is never replaced.
func (f *UploadFunction) Process(ctx context.Context, req UploadRequest) (*models.UploadResponse, error) {
	if req.Filename == "" || req.JobID == "" || req.Folder == "" {
		return nil, badRequest("Missing filename, jobId or uploadPath.")
	}
	if !slices.Contains(f.config.AllowedFolders, req.Folder) {
		return nil, badRequest("Invalid upload path.")
	}
	if req.ContentLength > f.config.MaxBytes {
		return nil, tooLarge()
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, internalError("Upload failed.", err)
	}
	if int64(len(data)) > f.config.MaxBytes {
		return nil, tooLarge()
	}

	filename := SanitizeFilename(req.Filename, f.now())
	jobID := SanitizeFilename(req.JobID, f.now())
	logCtx := slog.With("folder", req.Folder, "jobId", jobID, "filename", filename)

	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" || contentType == "application/x-www-form-urlencoded" {
		contentType = mime.TypeByExtension(path.Ext(filename))
	}

	pathname := path.Join(req.Folder, jobID, filename)
	obj, err := f.store.Put(ctx, pathname, bytes.NewReader(data), blobstore.PutOptions{ContentType: contentType})
	if errors.Is(err, blobstore.ErrExists) {
		pathname = path.Join(req.Folder, jobID, withSuffix(filename, uuid.NewString()[:8]))
		logCtx.Info("Name taken, storing under a suffixed name", "pathname", pathname)
		obj, err = f.store.Put(ctx, pathname, bytes.NewReader(data), blobstore.PutOptions{ContentType: contentType})
	}
	if err != nil {
		logCtx.Error("Failed to store upload", "error", err)
		return nil, internalError("Upload failed.", err)
	}

	logCtx.Info("Upload stored", "pathname", obj.Pathname, "size", obj.Size)
	return &models.UploadResponse{Message: "Upload succeeded.", URL: obj.URL}, nil
}

func tooLarge() error {
	return &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "File too large. Please compress it below 4MB."}
}

func withSuffix(filename, suffix string) string {
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "_" + suffix + ext
}

// ServeHTTP handles POST /upload?filename=&jobId=&uploadPath= with the file as raw body.
func (f *UploadFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST,OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	query := r.URL.Query()
	res, err := f.Process(r.Context(), UploadRequest{
		Filename:      query.Get("filename"),
		JobID:         query.Get("jobId"),
		Folder:        query.Get("uploadPath"),
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: r.ContentLength,
		Body:          r.Body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename folds Vietnamese diacritics to ASCII and replaces anything outside
// [A-Za-z0-9._-] with an underscore. A name with nothing left becomes file_<unix-ms>.
func SanitizeFilename(name string, now time.Time) string {
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}

	clean := foldASCII(base)
	if ext != "" {
		clean += "." + foldASCII(ext)
	}
	if strings.Trim(clean, "._") == "" {
		return "file_" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	return clean
}

func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("đ", "d", "Đ", "D").Replace(folded)
	return unsafeFilenameChars.ReplaceAllString(folded, "_")
}
