package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/notify"
)

const (
	SubmissionsRemoteKey = "refund_submissions"
	SubmissionsMirrorKey = "kimberry-refund-submissions"
	SubmissionsLegacyKey = "kimberry-submissions"

	submissionFolder = "CVHC"
)

// SubmissionsDesk handles deposit refund documents filed per house bill.
type SubmissionsDesk struct {
	repo  *Repository[models.Submission]
	files FileService
	feed  *notify.Feed
	user  string
}

// NewSubmissionsDesk builds the submissions desk. Completions are announced on feed as user.
func NewSubmissionsDesk(deps Deps, feed *notify.Feed, user string) *SubmissionsDesk {
	repo := NewRepository[models.Submission](Config{
		Name:      "submissions",
		RemoteKey: SubmissionsRemoteKey,
		MirrorKey: SubmissionsMirrorKey,
		LegacyKey: SubmissionsLegacyKey,
		Layout:    LayoutLedger,
	}, deps)
	return &SubmissionsDesk{repo: repo, files: deps.Files, feed: feed, user: user}
}

// Repo exposes the underlying repository.
func (d *SubmissionsDesk) Repo() *Repository[models.Submission] { return d.repo }

// Load refreshes pending and completed submissions.
func (d *SubmissionsDesk) Load(ctx context.Context) error { return d.repo.Load(ctx) }

// Add uploads the refund document under the house bill and stages it.
func (d *SubmissionsDesk) Add(ctx context.Context, hbl string, doc FileUpload) (models.Submission, error) {
	rec := models.Submission{Hbl: strings.TrimSpace(hbl)}
	if err := d.repo.Validate(rec); err != nil {
		return rec, err
	}
	if err := doc.validate(); err != nil {
		return rec, err
	}
	url, err := d.files.Upload(ctx, submissionFolder, rec.Hbl, doc.Name, doc.Body)
	if err != nil {
		return rec, fmt.Errorf("failed to upload document: %w", err)
	}
	rec = rec.WithAttachment(models.Attachment{FileURL: url, FileName: doc.Name})

	rec, err = d.repo.Add(ctx, rec)
	recordActivity(ctx, d.feed, d.user, models.ActionSubmission, "HBL: "+rec.Hbl, err)
	return rec, err
}

// Complete uploads the refund receipt and moves the submission to the completed list.
func (d *SubmissionsDesk) Complete(ctx context.Context, id string, receipt FileUpload) (models.Submission, error) {
	rec, ok := d.repo.Find(id)
	if !ok {
		return rec, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	if err := receipt.validate(); err != nil {
		return rec, err
	}
	url, err := d.files.Upload(ctx, doneFolder, fmt.Sprintf("DONE-%s-%s", rec.Hbl, rec.ID), receipt.Name, receipt.Body)
	if err != nil {
		return rec, fmt.Errorf("failed to upload receipt: %w", err)
	}
	return d.repo.Complete(ctx, rec.ID, models.Attachment{FileURL: url, FileName: receipt.Name})
}

// LoadForEditing takes pending submission id off the remote list and returns it for correction.
func (d *SubmissionsDesk) LoadForEditing(ctx context.Context, id string) (models.Submission, error) {
	return d.repo.LoadForEditing(ctx, id)
}

// DeletePending removes a pending submission.
func (d *SubmissionsDesk) DeletePending(ctx context.Context, id string) error {
	return d.repo.DeletePending(ctx, id)
}

// DeleteCompleted removes a completed submission along with its attachment.
func (d *SubmissionsDesk) DeleteCompleted(ctx context.Context, id string) error {
	return d.repo.DeleteCompleted(ctx, id)
}
