package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/models"
)

// FilesFunction lists stored blobs for the file manager.
type FilesFunction struct {
	store blobstore.Store
}

// NewFiles creates the function with the blob store named by the environment.
func NewFiles(ctx context.Context) (*FilesFunction, error) {
	store, err := blobstore.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	return NewFilesWithBackend(store), nil
}

// NewFilesWithBackend creates the function over store.
func NewFilesWithBackend(store blobstore.Store) *FilesFunction {
	return &FilesFunction{store: store}
}

// Process lists up to 1000 blobs, optionally restricted to a pathname prefix.
func (f *FilesFunction) Process(ctx context.Context, prefix string) (*models.ListFilesResponse, error) {
	objects, err := f.store.List(ctx, prefix, listLimit)
	if err != nil {
		slog.Error("Failed to list blobs", "prefix", prefix, "error", err)
		return nil, internalError("Failed to list files.", err)
	}
	return &models.ListFilesResponse{Files: toBlobFiles(objects)}, nil
}

// ServeHTTP handles GET /files[?prefix=].
func (f *FilesFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET,OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	setNoStore(w)

	res, err := f.Process(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
