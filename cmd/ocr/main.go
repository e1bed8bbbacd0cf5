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
	ocrInstance *services.OCRFunction
	once        sync.Once
	initErr     error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleOCR" is the entry point name configured in GCP.
	functions.HTTP("HandleOCR", handleOCR)
}

// main is required by the Go Functions Framework.
func main() {}

// handleOCR extracts the text of a scanned document image.
func handleOCR(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		ocrInstance, initErr = services.NewOCR(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	ocrInstance.ServeHTTP(w, r)
}
