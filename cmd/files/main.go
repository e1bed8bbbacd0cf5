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
	filesInstance *services.FilesFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleListFiles" is the entry point name configured in GCP.
	functions.HTTP("HandleListFiles", handleListFiles)
}

// main is required by the Go Functions Framework.
func main() {}

// handleListFiles lists stored files, optionally under a prefix.
func handleListFiles(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		filesInstance, initErr = services.NewFiles(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	filesInstance.ServeHTTP(w, r)
}
