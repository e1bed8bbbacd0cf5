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
	storeInstance *services.StoreFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleStore" is the entry point name configured in GCP.
	functions.HTTP("HandleStore", handleStore)
}

// main is required by the Go Functions Framework.
func main() {}

// handleStore serves reads, writes and listings of the JSON documents kept in blob storage.
func handleStore(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		storeInstance, initErr = services.NewStore(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	storeInstance.ServeHTTP(w, r)
}
