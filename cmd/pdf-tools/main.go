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
	pdfToolsInstance *services.PDFToolsFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandlePDFTools" is the entry point name configured in GCP.
	functions.HTTP("HandlePDFTools", handlePDFTools)
}

// main is required by the Go Functions Framework.
func main() {}

// handlePDFTools counts, splits and unlocks PDFs sent in the request body.
func handlePDFTools(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		pdfToolsInstance, initErr = services.NewPDFTools(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	pdfToolsInstance.ServeHTTP(w, r)
}
