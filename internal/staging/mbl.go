package staging

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/notify"
)

const (
	MblRemoteKey = "mbl_full_data"
	MblMirrorKey = "kimberry-mbl-payment-data"
	MblLegacyKey = "kimberry-mbl-payments"

	mblFolder  = "MBL"
	doneFolder = "DONE"
)

// DefaultLineOptions seeds the carrier line list when the store has none.
var DefaultLineOptions = sortedLines([]string{
	"EVERGREEN", "ONE", "WANHAI", "COSCO", "COSCO-HP", "TSLHN", "SITC", "AEC",
	"MSC-HCM", "MSC-HP", "HAIAN-HCM", "HAIAN-HP", "MAERSK", "JINJIANG", "ORIMAS",
	"RCL", "OOCL", "CMACGM", "MARINE-HP", "SINOVITRANS", "SNVT-HP", "HAPAG-LLOYD",
})

func sortedLines(lines []string) []string {
	slices.Sort(lines)
	return lines
}

// MblDesk handles carrier payments: staged with an invoice, completed with the payment
// order (UNC) file.
type MblDesk struct {
	repo  *Repository[models.MblPayment]
	files FileService
	feed  *notify.Feed
	user  string
	now   func() time.Time
}

// NewMblDesk builds the MBL payment desk. Completions are announced on feed as user.
func NewMblDesk(deps Deps, feed *notify.Feed, user string) *MblDesk {
	repo := NewRepository[models.MblPayment](Config{
		Name:      "mbl payments",
		RemoteKey: MblRemoteKey,
		MirrorKey: MblMirrorKey,
		LegacyKey: MblLegacyKey,
		Layout:    LayoutLedger,
	}, deps)
	return &MblDesk{repo: repo, files: deps.Files, feed: feed, user: user, now: time.Now}
}

// Repo exposes the underlying repository.
func (d *MblDesk) Repo() *Repository[models.MblPayment] { return d.repo }

// Load refreshes pending and completed payments.
func (d *MblDesk) Load(ctx context.Context) error { return d.repo.Load(ctx) }

// LineOptions returns the stored carrier lines, or the defaults when none are stored.
func (d *MblDesk) LineOptions() []string {
	if opts := d.repo.Options(); len(opts) > 0 {
		return opts
	}
	return slices.Clone(DefaultLineOptions)
}

// AddLineOption adds a carrier line, upper-cased, to the stored option list.
func (d *MblDesk) AddLineOption(ctx context.Context, name string) ([]string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("line name: %w", ErrMissingKey)
	}
	return d.repo.UpdateOptions(ctx, func(opts []string) ([]string, error) {
		if len(opts) == 0 {
			opts = slices.Clone(DefaultLineOptions)
		}
		for _, o := range opts {
			if strings.EqualFold(o, name) {
				return nil, fmt.Errorf("line %q: %w", name, ErrDuplicateKey)
			}
		}
		return sortedLines(append(opts, name)), nil
	})
}

// MblInput is the form data of a new payment.
type MblInput struct {
	MaLine string
	SoTien models.Amount
	Mbl    string
}

// Add uploads the invoice and stages the payment pointing at it. The record is only
// created once the upload succeeded.
func (d *MblDesk) Add(ctx context.Context, in MblInput, invoice FileUpload) (models.MblPayment, error) {
	rec := models.MblPayment{
		MaLine: strings.TrimSpace(in.MaLine),
		SoTien: in.SoTien.Digits(),
		Mbl:    strings.TrimSpace(in.Mbl),
	}
	if err := d.repo.Validate(rec); err != nil {
		return rec, err
	}
	if err := invoice.validate(); err != nil {
		return rec, err
	}

	jobID := fmt.Sprintf("MBL-%s-%d", rec.MaLine, d.now().UnixMilli())
	url, err := d.files.Upload(ctx, mblFolder, jobID, invoice.Name, invoice.Body)
	if err != nil {
		return rec, fmt.Errorf("failed to upload invoice: %w", err)
	}
	rec = rec.WithAttachment(models.Attachment{FileURL: url, FileName: invoice.Name})

	rec, err = d.repo.Add(ctx, rec)
	d.record(ctx, models.ActionMblPayment, "Mã Line: "+rec.MaLine, err)
	return rec, err
}

// Complete uploads the payment order and moves the payment to the completed list.
func (d *MblDesk) Complete(ctx context.Context, id string, unc FileUpload) (models.MblPayment, error) {
	rec, ok := d.repo.Find(id)
	if !ok {
		return rec, fmt.Errorf("mbl payment %q: %w", id, ErrNotFound)
	}
	if err := unc.validate(); err != nil {
		return rec, err
	}
	jobID := fmt.Sprintf("DONE-%s-%s", rec.MaLine, rec.ID)
	url, err := d.files.Upload(ctx, doneFolder, jobID, unc.Name, unc.Body)
	if err != nil {
		return rec, fmt.Errorf("failed to upload payment order: %w", err)
	}
	return d.repo.Complete(ctx, rec.ID, models.Attachment{FileURL: url, FileName: unc.Name})
}

// LoadForEditing takes pending payment id off the remote list and returns it for correction.
func (d *MblDesk) LoadForEditing(ctx context.Context, id string) (models.MblPayment, error) {
	return d.repo.LoadForEditing(ctx, id)
}

// DeletePending removes a pending payment.
func (d *MblDesk) DeletePending(ctx context.Context, id string) error {
	return d.repo.DeletePending(ctx, id)
}

// DeleteCompleted removes a completed payment along with its attachment.
func (d *MblDesk) DeleteCompleted(ctx context.Context, id string) error {
	return d.repo.DeleteCompleted(ctx, id)
}

func (d *MblDesk) record(ctx context.Context, action, details string, addErr error) {
	recordActivity(ctx, d.feed, d.user, action, details, addErr)
}

// UNCDownloadName is the file name a payment order is saved under:
// "UNC BL <mbl>.<ext>", falling back to the line code when the MBL number is empty.
func UNCDownloadName(p models.MblPayment) string {
	ref := strings.TrimSpace(p.Mbl)
	if ref == "" {
		ref = p.MaLine
	}
	ext := strings.TrimPrefix(path.Ext(p.HoaDonFilename), ".")
	if ext == "" {
		ext = "pdf"
	}
	return fmt.Sprintf("UNC BL %s.%s", ref, ext)
}

// recordActivity adds a feed entry for records that were staged, including those kept
// locally only.
func recordActivity(ctx context.Context, feed *notify.Feed, user, action, details string, addErr error) {
	if feed == nil || (addErr != nil && !isLocalOnly(addErr)) {
		return
	}
	if _, err := feed.Add(ctx, user, action, details); err != nil {
		slog.Warn("Failed to record activity", "action", action, "error", err)
	}
}
