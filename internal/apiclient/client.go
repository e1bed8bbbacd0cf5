// Package apiclient talks to the portal's backend functions: the document store and the
// file service.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
)

// ErrUnavailable means the store could not be read. The remote state is unknown and
// must not be overwritten.
var ErrUnavailable = errors.New("remote store unavailable")

// StatusError is a non-2xx reply from a backend function.
type StatusError struct {
	Op      string
	Status  int
	Message string
	Details string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Op, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " - " + e.Details
	}
	return msg
}

// Config configures a Client.
type Config struct {
	// BaseURL is the common prefix of the function endpoints, e.g. https://portal.example.com/api.
	BaseURL    string
	HTTPClient *http.Client
	// Mirror caches the last seen document URL per key. Optional.
	Mirror mirror.Mirror
}

// Client is the remote sync client used by the staging desks.
type Client struct {
	base   string
	http   *http.Client
	mirror mirror.Mirror
	now    func() time.Time
}

// New validates cfg and returns a client for the remote store.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("apiclient: BaseURL must be set")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("apiclient: invalid BaseURL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:   strings.TrimSuffix(cfg.BaseURL, "/"),
		http:   httpClient,
		mirror: cfg.Mirror,
		now:    time.Now,
	}, nil
}

func urlHintKey(key string) string { return key + ":store_url" }

// Fetch reads the document at key into dst. A key that was never written leaves dst
// untouched and returns nil, so callers initialise dst to the empty value first. Any
// failure wraps ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, key string, dst any) error {
	q := url.Values{}
	q.Set("key", key)
	if hint := c.cachedURL(ctx, key); hint != "" {
		q.Set("url", hint)
	}
	q.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/store?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w: %w", key, ErrUnavailable, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w: %w", key, ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to fetch %s: %w: %w", key, ErrUnavailable, statusError("fetch "+key, resp))
	}

	var body models.StoreGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode %s: %w: %w", key, ErrUnavailable, err)
	}
	if body.URL != nil {
		c.rememberURL(ctx, key, *body.URL)
	}
	if len(body.Data) == 0 || string(body.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(body.Data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}

// Save overwrites the document at key with v and returns its URL.
func (c *Client) Save(ctx context.Context, key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", key, err)
	}
	payload, err := json.Marshal(models.StorePutRequest{Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", key, err)
	}

	var res models.StorePutResponse
	if err := c.doJSON(ctx, "save "+key, http.MethodPost, "/store?key="+url.QueryEscape(key), "application/json", bytes.NewReader(payload), &res); err != nil {
		return "", err
	}
	if res.URL != "" {
		c.rememberURL(ctx, key, res.URL)
	}
	return res.URL, nil
}

// Upload sends body to the file service under folder/jobID and returns the public URL.
func (c *Client) Upload(ctx context.Context, folder, jobID, filename string, body io.Reader) (string, error) {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("jobId", jobID)
	q.Set("uploadPath", folder)

	var res models.UploadResponse
	if err := c.doJSON(ctx, "upload "+filename, http.MethodPost, "/upload?"+q.Encode(), "application/octet-stream", body, &res); err != nil {
		return "", err
	}
	if res.URL == "" {
		return "", fmt.Errorf("upload %s: response carried no url", filename)
	}
	return res.URL, nil
}

// DeleteFile removes an uploaded file by its URL.
func (c *Client) DeleteFile(ctx context.Context, fileURL string) error {
	payload, err := json.Marshal(models.DeleteFileRequest{URL: fileURL})
	if err != nil {
		return err
	}
	var res models.MessageResponse
	return c.doJSON(ctx, "delete file", http.MethodPost, "/delete", "application/json", bytes.NewReader(payload), &res)
}

// ListFiles returns the stored blobs, optionally restricted to a pathname prefix.
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]models.BlobFile, error) {
	path := "/files"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	var res models.ListFilesResponse
	if err := c.doJSON(ctx, "list files", http.MethodGet, path, "", nil, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// OCR extracts the text of an image. apiKey may be empty to use the server key.
func (c *Client) OCR(ctx context.Context, mimeType string, imageBase64, apiKey string) (string, error) {
	payload, err := json.Marshal(models.OCRRequest{ImageBase64: imageBase64, MimeType: mimeType, APIKey: apiKey})
	if err != nil {
		return "", err
	}
	var res models.OCRResponse
	if err := c.doJSON(ctx, "ocr", http.MethodPost, "/ocr", "application/json", bytes.NewReader(payload), &res); err != nil {
		return "", err
	}
	return res.Text, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path, contentType string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// statusError extracts {error, details} from a JSON body, or the first 100 characters of
// any other body.
func statusError(op string, resp *http.Response) *StatusError {
	se := &StatusError{Op: op, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body models.ErrorResponse
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") && json.Unmarshal(raw, &body) == nil {
		se.Message = body.Error
		se.Details = body.Details
		return se
	}
	text := strings.TrimSpace(string(raw))
	if runes := []rune(text); len(runes) > maxErrorText {
		text = string(runes[:maxErrorText]) + "..."
	}
	se.Message = text
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}

// maxErrorText bounds the part of a non-JSON error body kept in a StatusError.
const maxErrorText = 100

func (c *Client) cachedURL(ctx context.Context, key string) string {
	if c.mirror == nil {
		return ""
	}
	raw, found, err := c.mirror.Get(ctx, urlHintKey(key))
	if err != nil || !found {
		return ""
	}
	return string(raw)
}

func (c *Client) rememberURL(ctx context.Context, key, u string) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Set(ctx, urlHintKey(key), []byte(u)); err != nil {
		slog.Warn("Failed to cache store url", "key", key, "error", err)
	}
}
