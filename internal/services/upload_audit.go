package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/opsportal/internal/gcp"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	AuditStatusRecorded  = "RECORDED"
	AuditStatusDuplicate = "DUPLICATE"
)

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
}

// UploadLedger persists audit records.
type UploadLedger interface {
	// FindByHash returns the pathname of an earlier upload with the same content.
	FindByHash(ctx context.Context, fileHash string) (pathname string, found bool, err error)
	Record(ctx context.Context, rec models.UploadRecord) (id string, err error)
}

// Handoff is told about every new audit record, e.g. to start a review workflow.
type Handoff interface {
	Start(ctx context.Context, documentID string, rec models.UploadRecord) error
}

// ObjectOpener opens a stored object for reading.
type ObjectOpener func(ctx context.Context, bucket, name string) (io.ReadCloser, error)

// UploadAuditConfig holds configuration for the upload audit service.
type UploadAuditConfig struct {
	ProjectID      string
	DatabaseID     string
	CollectionName string
	// Objects under these prefixes are not attachments and are skipped.
	IgnorePrefixes []string
	// WorkflowID names a Cloud Workflow started for each new record. Empty disables it.
	WorkflowID       string
	WorkflowLocation string
}

// UploadAuditFunction records every finalized attachment in Firestore and flags uploads
// whose content matches an earlier one.
type UploadAuditFunction struct {
	open    ObjectOpener
	ledger  UploadLedger
	handoff Handoff
	config  UploadAuditConfig
}

func loadUploadAuditConfig() UploadAuditConfig {
	return UploadAuditConfig{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		DatabaseID:       gcp.GetEnv("FIRESTORE_DATABASE", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "uploads"),
		IgnorePrefixes:   []string{gcp.GetEnv("BLOB_PREFIX", "") + "db/"},
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}
}

// NewUploadAudit wires the function to Cloud Storage and Firestore, plus Workflows when a workflow is configured.
func NewUploadAudit(ctx context.Context) (*UploadAuditFunction, error) {
	config := loadUploadAuditConfig()
	if config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.DatabaseID)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
		return storageClient.Bucket(bucket).Object(name).NewReader(ctx)
	}
	ledger := &firestoreLedger{client: firestoreClient, collection: config.CollectionName}

	f := NewUploadAuditWith(open, ledger, config)
	if config.WorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		f.handoff = &workflowHandoff{
			client: executionsClient,
			parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", config.ProjectID, config.WorkflowLocation, config.WorkflowID),
		}
	}

	slog.Info("Upload audit initialized.", "collection", config.CollectionName, "workflowId", config.WorkflowID)
	return f, nil
}

// NewUploadAuditWith creates the function over the given collaborators.
func NewUploadAuditWith(open ObjectOpener, ledger UploadLedger, config UploadAuditConfig) *UploadAuditFunction {
	return &UploadAuditFunction{open: open, ledger: ledger, config: config}
}

// WithHandoff sets the receiver of new audit records.
func (f *UploadAuditFunction) WithHandoff(h Handoff) *UploadAuditFunction {
	f.handoff = h
	return f
}

// Process hashes the finalized object and writes its audit record.
func (f *UploadAuditFunction) Process(ctx context.Context, e GCSEvent) (*models.UploadRecord, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	for _, prefix := range f.config.IgnorePrefixes {
		if strings.HasPrefix(e.Name, prefix) {
			logCtx.Debug("Skipping store document.")
			return nil, nil
		}
	}

	reader, err := f.open(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to open uploaded object", "error", err)
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", e.Bucket, e.Name, err)
	}
	defer reader.Close()

	var content bytes.Buffer
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(hasher, &content), reader)
	if err != nil {
		logCtx.Error("Failed to read uploaded object", "error", err)
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	logCtx = logCtx.With("fileHash", fileHash)

	pathname := strings.TrimPrefix(e.Name, gcp.GetEnv("BLOB_PREFIX", ""))
	folder, jobID := splitAttachmentPath(pathname)
	rec := models.UploadRecord{
		Bucket:      e.Bucket,
		Pathname:    pathname,
		Folder:      folder,
		JobID:       jobID,
		FileHash:    fileHash,
		Size:        size,
		ContentType: e.ContentType,
		Status:      AuditStatusRecorded,
		CreatedAt:   time.Now().UTC(),
	}
	if declared, err := strconv.ParseInt(e.Size, 10, 64); err == nil && declared != size {
		logCtx.Warn("Object size differs from the event", "declared", declared, "read", size)
	}
	if e.ContentType == "application/pdf" || strings.HasSuffix(strings.ToLower(pathname), ".pdf") {
		if pages, err := api.PageCount(bytes.NewReader(content.Bytes()), pdfConfig()); err == nil {
			rec.Pages = pages
		} else {
			logCtx.Warn("Could not count PDF pages", "error", err)
		}
	}

	earlier, found, err := f.ledger.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return nil, err
	}
	if found {
		if earlier == pathname {
			logCtx.Info("Event redelivered for a recorded upload. Skipping.")
			return nil, nil
		}
		rec.Status = AuditStatusDuplicate
		rec.DuplicateOf = earlier
		logCtx.Info("Duplicate upload detected.", "duplicateOf", earlier)
	}

	id, err := f.ledger.Record(ctx, rec)
	if err != nil {
		logCtx.Error("Failed to write audit record", "error", err)
		return nil, err
	}
	logCtx.Info("Upload recorded.", "documentId", id, "status", rec.Status)

	// The record is written; a redelivered event would be skipped, so a failed hand-off
	// is logged rather than returned.
	if f.handoff != nil {
		if err := f.handoff.Start(ctx, id, rec); err != nil {
			logCtx.Error("Failed to hand off audit record", "documentId", id, "error", err)
		} else {
			logCtx.Info("Hand-off to workflow complete.", "documentId", id)
		}
	}
	return &rec, nil
}

// splitAttachmentPath reads <folder>/<jobId>/<file>.
func splitAttachmentPath(pathname string) (folder, jobID string) {
	parts := strings.SplitN(pathname, "/", 3)
	if len(parts) == 3 {
		return parts[0], parts[1]
	}
	return "", ""
}

type firestoreLedger struct {
	client     *firestore.Client
	collection string
}

func (l *firestoreLedger) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := l.client.Collection(l.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return "", false, nil
	}
	var rec models.UploadRecord
	if err := docs[0].DataTo(&rec); err != nil {
		return "", false, fmt.Errorf("failed to decode audit record %s: %w", docs[0].Ref.ID, err)
	}
	return rec.Pathname, true, nil
}

func (l *firestoreLedger) Record(ctx context.Context, rec models.UploadRecord) (string, error) {
	docRef, _, err := l.client.Collection(l.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create audit record: %w", err)
	}
	return docRef.ID, nil
}

type workflowHandoff struct {
	client *executions.Client
	parent string
}

func (h *workflowHandoff) Start(ctx context.Context, documentID string, rec models.UploadRecord) error {
	payload, err := json.Marshal(map[string]any{
		"documentId":  documentID,
		"pathname":    rec.Pathname,
		"status":      rec.Status,
		"duplicateOf": rec.DuplicateOf,
		"pages":       rec.Pages,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent:    h.parent,
		Execution: &executionspb.Execution{Argument: string(payload)},
	}
	if _, err := h.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}
