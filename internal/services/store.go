package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/models"
)

// listLimit caps every listing, matching what the portal's file manager can page through.
const listLimit = 1000

var storeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// StoreFunction serves the key/value document store used by the staging desks. Each key
// is one JSON document at db/<key>.json, overwritten on every save.
type StoreFunction struct {
	store blobstore.Store
}

// NewStore creates a StoreFunction on the blob backend selected by the environment.
func NewStore(ctx context.Context) (*StoreFunction, error) {
	store, err := blobstore.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	slog.Info("Store function initialized.")
	return NewStoreWithBackend(store), nil
}

// NewStoreWithBackend creates a StoreFunction on an existing blob store.
func NewStoreWithBackend(store blobstore.Store) *StoreFunction {
	return &StoreFunction{store: store}
}

func documentPath(key string) string {
	return "db/" + key + ".json"
}

// Get reads the document for key. hint is the URL returned by an earlier save; it is only
// honoured when it points into this store. Only a document that does not exist yields null
// data and url; a failed read or a corrupt document is an error, so the client never takes
// it for an empty collection.
func (f *StoreFunction) Get(ctx context.Context, key, hint string) (*models.StoreGetResponse, error) {
	if key == "" && hint == "" {
		return nil, badRequest(`Missing "key" or "url" parameter.`)
	}
	logCtx := slog.With("key", key)

	pathname := ""
	if hint != "" {
		if p, ok := f.store.Pathname(hint); ok {
			pathname = p
		} else {
			logCtx.Warn("Ignoring url hint outside of the store", "url", hint)
		}
	}
	if pathname == "" {
		if key == "" {
			return &models.StoreGetResponse{}, nil
		}
		if !storeKeyPattern.MatchString(key) {
			return nil, badRequest(`Invalid "key" parameter.`)
		}
		pathname = documentPath(key)
	}

	reader, err := f.store.Get(ctx, pathname)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			return &models.StoreGetResponse{}, nil
		}
		logCtx.Error("Failed to read document", "pathname", pathname, "error", err)
		return nil, internalError("Failed to read document", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		logCtx.Error("Failed to read document", "pathname", pathname, "error", err)
		return nil, internalError("Failed to read document", err)
	}
	if !json.Valid(data) {
		logCtx.Error("Document is not valid JSON", "pathname", pathname, "size", len(data))
		return nil, internalError("Document is corrupt", fmt.Errorf("%s is not valid JSON", pathname))
	}

	url := f.store.URL(pathname)
	return &models.StoreGetResponse{Data: data, URL: &url}, nil
}

// Put overwrites the document for key with data.
func (f *StoreFunction) Put(ctx context.Context, key string, data json.RawMessage) (*models.StorePutResponse, error) {
	if key == "" {
		return nil, badRequest(`Missing "key" parameter.`)
	}
	if !storeKeyPattern.MatchString(key) {
		return nil, badRequest(`Invalid "key" parameter.`)
	}
	if data == nil {
		return nil, badRequest(`Missing "data" field.`)
	}

	obj, err := f.store.Put(ctx, documentPath(key), bytes.NewReader(data), blobstore.PutOptions{
		ContentType:  "application/json",
		CacheControl: "no-store",
		Overwrite:    true,
	})
	if err != nil {
		slog.Error("Failed to save document", "key", key, "error", err)
		return nil, internalError("Internal Server Error", err)
	}
	slog.Info("Document saved", "key", key, "size", obj.Size)
	return &models.StorePutResponse{Success: true, URL: obj.URL}, nil
}

// List returns the metadata of every stored blob, documents and uploads alike.
func (f *StoreFunction) List(ctx context.Context) (*models.ListFilesResponse, error) {
	objects, err := f.store.List(ctx, "", listLimit)
	if err != nil {
		slog.Error("Failed to list blobs", "error", err)
		return nil, internalError("Internal Server Error", err)
	}
	return &models.ListFilesResponse{Files: toBlobFiles(objects)}, nil
}

// ServeHTTP routes GET/POST /store.
func (f *StoreFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET,OPTIONS,PATCH,DELETE,POST,PUT")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	setNoStore(w)

	query := r.URL.Query()
	var (
		res any
		err error
	)
	switch r.Method {
	case http.MethodGet:
		if query.Get("action") == "list" {
			res, err = f.List(r.Context())
		} else {
			res, err = f.Get(r.Context(), query.Get("key"), query.Get("url"))
		}
	case http.MethodPost:
		var req models.StorePutRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			writeError(w, badRequest("Invalid JSON body."))
			return
		}
		if req.Action == "list" {
			res, err = f.List(r.Context())
			break
		}
		key := query.Get("key")
		if key == "" {
			key = req.Key
		}
		res, err = f.Put(r.Context(), key, req.Data)
	default:
		methodNotAllowed(w, r, "GET, POST, OPTIONS")
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
