package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/opsportal/internal/models"
)

const (
	JobsRemoteKey = "kimberry_data_entry_staging"
	JobsMirrorKey = "kimberry-data-entry-pending"
	JobsLegacyKey = "kimberry-job-entries"

	// lookupConcurrency bounds the register lookups of CheckExisting.
	lookupConcurrency = 8
)

// JobsDesk stages job rows before they are pushed to the spreadsheet register.
type JobsDesk struct {
	repo     *Repository[models.JobEntry]
	register Register
}

// NewJobsDesk builds the job staging desk. Existence checks go to register.
func NewJobsDesk(deps Deps, register Register) *JobsDesk {
	repo := NewRepository[models.JobEntry](Config{
		Name:      "jobs",
		RemoteKey: JobsRemoteKey,
		MirrorKey: JobsMirrorKey,
		LegacyKey: JobsLegacyKey,
		Layout:    LayoutList,
	}, deps)
	return &JobsDesk{repo: repo, register: register}
}

// Repo exposes the underlying repository.
func (d *JobsDesk) Repo() *Repository[models.JobEntry] { return d.repo }

// Load refreshes the pending jobs from the remote store.
func (d *JobsDesk) Load(ctx context.Context) error { return d.repo.Load(ctx) }

// Pending returns the staged jobs.
func (d *JobsDesk) Pending() []models.JobEntry { return d.repo.Pending() }

// Add stages a job row. Amounts are reduced to digits and text fields trimmed.
func (d *JobsDesk) Add(ctx context.Context, e models.JobEntry) (models.JobEntry, error) {
	return d.repo.Add(ctx, normalizeJob(e))
}

func normalizeJob(e models.JobEntry) models.JobEntry {
	e.Ma = strings.TrimSpace(e.Ma)
	e.Thang = strings.TrimSpace(e.Thang)
	e.MaKH = e.MaKH.Digits()
	e.SoTien = e.SoTien.Digits()
	e.TrangThai = strings.TrimSpace(e.TrangThai)
	e.NoiDung1 = strings.TrimSpace(e.NoiDung1)
	e.NoiDung2 = strings.TrimSpace(e.NoiDung2)
	return e
}

// LoadForEditing takes a staged row, found by id or job code, out of the list.
func (d *JobsDesk) LoadForEditing(ctx context.Context, ref string) (models.JobEntry, error) {
	id, err := d.resolve(ref)
	if err != nil {
		return models.JobEntry{}, err
	}
	return d.repo.LoadForEditing(ctx, id)
}

// Delete removes the staged job with the given reference.
func (d *JobsDesk) Delete(ctx context.Context, ref string) error {
	id, err := d.resolve(ref)
	if err != nil {
		return err
	}
	return d.repo.DeletePending(ctx, id)
}

func (d *JobsDesk) resolve(ref string) (string, error) {
	e, ok := d.repo.Find(ref)
	if !ok {
		return "", fmt.Errorf("job %q: %w", ref, ErrNotFound)
	}
	return e.RecordID(), nil
}

// Sync pushes every staged row to the register in one request and clears the staging
// list once the request was accepted.
func (d *JobsDesk) Sync(ctx context.Context) (int, error) {
	n, err := d.repo.Handoff(ctx, d.register.BulkAdd)
	if err != nil {
		return n, err
	}
	slog.Info("Synced job rows to register", "count", n)
	return n, nil
}

// CheckExisting looks every staged job code up in the register and drops the ones that
// are already there. A failed lookup counts as not existing.
func (d *JobsDesk) CheckExisting(ctx context.Context) ([]string, error) {
	pending := d.repo.Pending()
	if len(pending) == 0 {
		return nil, ErrNothingToSync
	}

	found := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, e := range pending {
		g.Go(func() error {
			ok, err := d.register.Exists(gctx, e.Ma)
			if err != nil {
				slog.Warn("Register lookup failed, keeping row", "ma", e.Ma, "error", err)
				return nil
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("check existing cancelled: %w", err)
	}

	var existing []string
	for i, ok := range found {
		if ok {
			existing = append(existing, pending[i].Ma)
		}
	}
	if len(existing) == 0 {
		return nil, nil
	}
	if _, err := d.repo.RemoveKeys(ctx, existing); err != nil {
		return existing, err
	}
	slog.Info("Removed rows already in register", "count", len(existing))
	return existing, nil
}

// ErrAlreadyStaged is returned when a register row is loaded for a code that is staged.
var ErrAlreadyStaged = errors.New("already staged")

// LoadFromSheet fetches the register row for code so it can be edited and staged again.
func (d *JobsDesk) LoadFromSheet(ctx context.Context, code string) (models.JobEntry, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.JobEntry{}, fmt.Errorf("job code: %w", ErrMissingKey)
	}
	if _, ok := d.repo.Find(code); ok {
		return models.JobEntry{}, fmt.Errorf("job %q: %w", code, ErrAlreadyStaged)
	}
	rows, err := d.register.Lookup(ctx, code)
	if err != nil {
		return models.JobEntry{}, fmt.Errorf("failed to look up %s: %w", code, err)
	}
	if len(rows) == 0 {
		return models.JobEntry{}, fmt.Errorf("job %q in register: %w", code, ErrNotFound)
	}
	e := normalizeJob(rows[0])
	e.ID = ""
	return e, nil
}

// ExportXLSX writes the staged rows as a spreadsheet.
func (d *JobsDesk) ExportXLSX(w io.Writer) error {
	return WriteJobsXLSX(w, d.repo.Pending())
}

// ImportXLSX stages every row of a spreadsheet in the export layout. Rows that cannot be
// staged are reported together; the rest are kept.
func (d *JobsDesk) ImportXLSX(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ReadJobsXLSX(r)
	if err != nil {
		return 0, err
	}
	added := 0
	var errs []error
	for _, e := range rows {
		if _, err := d.Add(ctx, e); err != nil {
			errs = append(errs, err)
			if !errors.Is(err, ErrLocalOnly) {
				continue
			}
		}
		added++
	}
	return added, errors.Join(errs...)
}
