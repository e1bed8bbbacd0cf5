package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/models"
)

// DeleteFileFunction removes an uploaded attachment by its public URL.
type DeleteFileFunction struct {
	store blobstore.Store
}

// NewDeleteFile creates the function with the blob store named by the environment.
func NewDeleteFile(ctx context.Context) (*DeleteFileFunction, error) {
	store, err := blobstore.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	return NewDeleteFileWithBackend(store), nil
}

// NewDeleteFileWithBackend creates the function over store.
func NewDeleteFileWithBackend(store blobstore.Store) *DeleteFileFunction {
	return &DeleteFileFunction{store: store}
}

// Process deletes the object behind req.URL. Deleting an object that is already gone
// succeeds.
func (f *DeleteFileFunction) Process(ctx context.Context, req models.DeleteFileRequest) (*models.MessageResponse, error) {
	if req.URL == "" {
		return nil, badRequest("URL parameter is required in the request body.")
	}
	logCtx := slog.With("url", req.URL)

	pathname, ok := f.store.Pathname(req.URL)
	if !ok {
		logCtx.Warn("Refusing to delete a URL outside of the store")
		return nil, badRequest("URL does not belong to this store.")
	}

	if err := f.store.Delete(ctx, pathname); err != nil {
		if !errors.Is(err, blobstore.ErrNotExist) {
			logCtx.Error("Failed to delete file", "error", err)
			return nil, internalError("Failed to delete file.", err)
		}
		logCtx.Info("File was already gone")
	}
	logCtx.Info("File deleted", "pathname", pathname)
	return &models.MessageResponse{Message: "File deleted successfully."}, nil
}

// ServeHTTP handles POST /delete {url}.
func (f *DeleteFileFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST,OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req models.DeleteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("Invalid JSON body."))
		return
	}
	res, err := f.Process(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
