package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/opsportal/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	uploadAuditInstance *services.UploadAuditFunction
	once                sync.Once
	initErr             error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by object finalize events on the upload bucket.
	functions.CloudEvent("AuditUpload", auditUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// auditUpload records every finalized attachment in the Firestore upload ledger.
func auditUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		uploadAuditInstance, initErr = services.NewUploadAudit(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process; returning one marks the invocation failed.
	if _, err := uploadAuditInstance.Process(ctx, gcsEvent); err != nil {
		return err
	}
	return nil
}
