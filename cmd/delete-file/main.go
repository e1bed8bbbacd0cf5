package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/opsportal/internal/services"
)

var (
	deleteFileInstance *services.DeleteFileFunction
	once               sync.Once
	initErr            error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleDeleteFile" is the entry point name configured in GCP.
	functions.HTTP("HandleDeleteFile", handleDeleteFile)
}

// main is required by the Go Functions Framework.
func main() {}

// handleDeleteFile deletes a stored file by its public URL.
func handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		deleteFileInstance, initErr = services.NewDeleteFile(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	deleteFileInstance.ServeHTTP(w, r)
}
