package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/opsportal/internal/gcp"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultPDFMaxBytes caps request bodies when PDF_MAX_BYTES is unset.
const DefaultPDFMaxBytes = 25 << 20

var pageSelectionPattern = regexp.MustCompile(`^\d+(-\d+)?(,\d+(-\d+)?)*$`)

// PDFToolsConfig holds configuration for the PDF tools service.
type PDFToolsConfig struct {
	MaxBytes int64
}

// PDFToolsFunction extracts page ranges from, counts the pages of and unlocks PDFs.
// Everything happens in memory; nothing is persisted.
type PDFToolsFunction struct {
	config PDFToolsConfig
}

func loadPDFToolsConfig() PDFToolsConfig {
	maxBytes, err := strconv.ParseInt(gcp.GetEnv("PDF_MAX_BYTES", ""), 10, 64)
	if err != nil || maxBytes <= 0 {
		maxBytes = DefaultPDFMaxBytes
	}
	return PDFToolsConfig{MaxBytes: maxBytes}
}

// NewPDFTools creates the function from environment config.
func NewPDFTools(ctx context.Context) (*PDFToolsFunction, error) {
	return NewPDFToolsWithConfig(loadPDFToolsConfig()), nil
}

// NewPDFToolsWithConfig creates the function with an explicit config.
func NewPDFToolsWithConfig(config PDFToolsConfig) *PDFToolsFunction {
	return &PDFToolsFunction{config: config}
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ParsePageSelection validates a selection such as "1-3,5" and splits it into the
// page ranges pdfcpu expects.
func ParsePageSelection(pages string) ([]string, error) {
	pages = strings.ReplaceAll(pages, " ", "")
	if !pageSelectionPattern.MatchString(pages) {
		return nil, fmt.Errorf("invalid page selection %q", pages)
	}
	selection := strings.Split(pages, ",")
	for _, r := range selection {
		from, to, isRange := strings.Cut(r, "-")
		first, _ := strconv.Atoi(from)
		if first == 0 {
			return nil, fmt.Errorf("invalid page selection %q: pages start at 1", pages)
		}
		if isRange {
			last, _ := strconv.Atoi(to)
			if last < first {
				return nil, fmt.Errorf("invalid page selection %q: range %s is reversed", pages, r)
			}
		}
	}
	return selection, nil
}

// PageCount returns the number of pages in pdf.
func (f *PDFToolsFunction) PageCount(ctx context.Context, pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// Split returns a new PDF holding only the selected pages, in document order.
func (f *PDFToolsFunction) Split(ctx context.Context, pdf []byte, pages string) ([]byte, error) {
	selection, err := ParsePageSelection(pages)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(pdf), &out, selection, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract pages %s: %w", pages, err)
	}
	return out.Bytes(), nil
}

// Unlock removes the encryption from pdf using password as both user and owner password.
func (f *PDFToolsFunction) Unlock(ctx context.Context, pdf []byte, password string) ([]byte, error) {
	conf := pdfConfig()
	conf.UserPW = password
	conf.OwnerPW = password
	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(pdf), &out, conf); err != nil {
		return nil, fmt.Errorf("failed to unlock PDF: %w", err)
	}
	return out.Bytes(), nil
}

// ServeHTTP handles POST /pdf/split?pages=, POST /pdf/unlock?password= and
// POST /pdf/pagecount. The PDF is the raw request body.
func (f *PDFToolsFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST,OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	op := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if q := r.URL.Query().Get("op"); q != "" {
		op = q
	}
	logCtx := slog.With("op", op)

	pdf, err := io.ReadAll(io.LimitReader(r.Body, f.config.MaxBytes+1))
	if err != nil {
		writeError(w, internalError("Failed to read request body.", err))
		return
	}
	if int64(len(pdf)) > f.config.MaxBytes {
		writeError(w, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "PDF too large."})
		return
	}
	if len(pdf) == 0 {
		writeError(w, badRequest("Missing PDF body."))
		return
	}

	var out []byte
	switch op {
	case "pagecount":
		n, err := f.PageCount(r.Context(), pdf)
		if err != nil {
			logCtx.Warn("Page count failed", "error", err)
			writeError(w, &RequestError{Status: http.StatusUnprocessableEntity, Message: "Could not read PDF.", Details: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, models.PageCountResponse{Pages: n})
		return
	case "split":
		out, err = f.Split(r.Context(), pdf, r.URL.Query().Get("pages"))
	case "unlock":
		out, err = f.Unlock(r.Context(), pdf, r.URL.Query().Get("password"))
	default:
		writeError(w, &RequestError{Status: http.StatusNotFound, Message: "Unknown PDF operation."})
		return
	}
	if err != nil {
		logCtx.Warn("PDF operation failed", "error", err)
		writeError(w, &RequestError{Status: http.StatusUnprocessableEntity, Message: "Could not process PDF.", Details: err.Error()})
		return
	}

	logCtx.Info("PDF operation complete", "inBytes", len(pdf), "outBytes", len(out))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		logCtx.Error("Failed to write response", "error", err)
	}
}
