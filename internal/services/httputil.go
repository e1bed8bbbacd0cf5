package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/models"
)

const corsAllowHeaders = "X-CSRF-Token, X-Requested-With, Accept, Accept-Version, Content-Length, Content-MD5, Content-Type, Date, X-Api-Version"

// RequestError is a failure that maps to a specific HTTP status.
type RequestError struct {
	Status  int
	Message string
	Details string
}

func (e *RequestError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func badRequest(msg string) error {
	return &RequestError{Status: http.StatusBadRequest, Message: msg}
}

func internalError(msg string, err error) error {
	return &RequestError{Status: http.StatusInternalServerError, Message: msg, Details: err.Error()}
}

func setCORS(w http.ResponseWriter, methods string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", methods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
}

func setNoStore(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// writeError renders err as {error, details}. Errors that are not a RequestError become a 500.
func writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = &RequestError{Status: http.StatusInternalServerError, Message: "Internal Server Error", Details: err.Error()}
	}
	writeJSON(w, reqErr.Status, models.ErrorResponse{Error: reqErr.Message, Details: reqErr.Details})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method " + r.Method + " Not Allowed"})
}

func toBlobFiles(objects []blobstore.Object) []models.BlobFile {
	files := make([]models.BlobFile, 0, len(objects))
	for _, o := range objects {
		files = append(files, models.BlobFile{
			URL:        o.URL,
			Pathname:   o.Pathname,
			Size:       o.Size,
			UploadedAt: o.UploadedAt,
		})
	}
	return files
}
