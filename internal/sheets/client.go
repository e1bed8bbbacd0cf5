// Package sheets is the client of the spreadsheet web app that holds the job register.
package sheets

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
	"strings"
	"time"

	"github.com/Lllllllleong/opsportal/internal/models"
)

const actionBulkAdd = "bulkAdd"

// LookupError is an {error} reply from the web app.
type LookupError struct {
	Code    string
	Message string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("sheet lookup %s: %s", e.Code, e.Message)
}

// Client calls the web app. Lookups are plain GETs; bulk appends are posted and the
// answer is not inspected.
type Client struct {
	webAppURL string
	http      *http.Client
}

// New returns a client for the register web app at webAppURL.
func New(webAppURL string, httpClient *http.Client) (*Client, error) {
	if webAppURL == "" {
		return nil, errors.New("sheets: web app URL must be set")
	}
	if _, err := url.Parse(webAppURL); err != nil {
		return nil, fmt.Errorf("sheets: invalid web app URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{webAppURL: webAppURL, http: httpClient}, nil
}

// Lookup returns the register rows for a job code. The web app answers with a single
// row, an array of rows or {error}; an empty object or array means no match.
func (c *Client) Lookup(ctx context.Context, code string) ([]models.JobEntry, error) {
	code = strings.TrimSpace(code)
	sep := "?"
	if strings.Contains(c.webAppURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.webAppURL+sep+"q="+url.QueryEscape(code), nil)
	if err != nil {
		return nil, fmt.Errorf("sheet lookup %s: %w", code, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet lookup %s: %w", code, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sheet lookup %s: HTTP status %d", code, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheet lookup %s: %w", code, err)
	}
	return decodeRows(code, bytes.TrimSpace(raw))
}

func decodeRows(code string, raw []byte) ([]models.JobEntry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var rows []models.JobEntry
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("sheet lookup %s: failed to decode rows: %w", code, err)
		}
		return rows, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("sheet lookup %s: failed to decode response: %w", code, err)
	}
	if msg, ok := fields["error"]; ok {
		var text string
		if json.Unmarshal(msg, &text) != nil {
			text = string(msg)
		}
		return nil, &LookupError{Code: code, Message: text}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	var row models.JobEntry
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("sheet lookup %s: failed to decode row: %w", code, err)
	}
	return []models.JobEntry{row}, nil
}

// Exists reports whether the register already has a row for code.
func (c *Client) Exists(ctx context.Context, code string) (bool, error) {
	rows, err := c.Lookup(ctx, code)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// BulkAdd posts entries for appending to the register. Only a failure to send the
// request is reported; whether the web app accepted the rows cannot be observed.
func (c *Client) BulkAdd(ctx context.Context, entries []models.JobEntry) error {
	payload, err := json.Marshal(models.SheetBulkAddRequest{Action: actionBulkAdd, Data: entries})
	if err != nil {
		return fmt.Errorf("failed to encode bulk add: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webAppURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build bulk add request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send bulk add: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	slog.Debug("Bulk add sent", "rows", len(entries), "status", resp.StatusCode)
	return nil
}
