package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/notify"
)

// Layout is the shape of the remote document.
type Layout int

const (
	// LayoutList stores a flat array of pending records.
	LayoutList Layout = iota
	// LayoutLedger stores {pending, completed, options}.
	LayoutLedger
)

// Config names the keys of one staged collection.
type Config struct {
	Name      string
	RemoteKey string
	MirrorKey string
	// LegacyKey is a mirror key that held records before they moved to the remote
	// store. Empty disables migration.
	LegacyKey string
	Layout    Layout
}

// Deps are the collaborators shared by every repository.
type Deps struct {
	Remote  Remote
	Files   FileService
	Mirror  mirror.Mirror
	Emitter *notify.Emitter
}

// Repository keeps the in-memory view of one staged collection in step with the remote
// document. Every change fetches the latest document first and never saves when that
// fetch failed, so an unreachable store cannot be overwritten with a partial view.
//
// Operations are serialised. Change events are emitted while an operation is in flight:
// handlers may read the repository through its accessors, which never block, but must not
// start another operation on it.
type Repository[T Record[T]] struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	busy      atomic.Bool
	pending   []T
	completed []T
	options   []string
	// unsynced holds records added while the remote store was unreachable. They are
	// carried into the next document that is saved successfully.
	unsynced []T

	// view is the state last published to readers.
	view atomic.Pointer[snapshot[T]]
}

type snapshot[T any] struct {
	pending   []T
	completed []T
	options   []string
	unsynced  []T
}

// NewRepository creates an empty repository. Call Load to read the remote document.
func NewRepository[T Record[T]](cfg Config, deps Deps) *Repository[T] {
	if deps.Emitter == nil {
		deps.Emitter = notify.Default()
	}
	r := &Repository[T]{cfg: cfg, deps: deps}
	r.view.Store(&snapshot[T]{})
	return r
}

// Config returns the keys and layout the repository was created with.
func (r *Repository[T]) Config() Config { return r.cfg }

// Busy reports whether an operation is in flight.
func (r *Repository[T]) Busy() bool { return r.busy.Load() }

// Pending returns a copy of the pending list.
func (r *Repository[T]) Pending() []T { return slices.Clone(r.view.Load().pending) }

// Completed returns a copy of the completed list. It is always empty for LayoutList.
func (r *Repository[T]) Completed() []T { return slices.Clone(r.view.Load().completed) }

// Options returns a copy of the stored option list.
func (r *Repository[T]) Options() []string { return slices.Clone(r.view.Load().options) }

// Unsynced returns the records that have not reached the remote store yet.
func (r *Repository[T]) Unsynced() []T { return slices.Clone(r.view.Load().unsynced) }

// Find looks a pending record up by id, then by key.
func (r *Repository[T]) Find(ref string) (T, bool) {
	pending := r.view.Load().pending
	if i := indexByID(pending, ref); i >= 0 {
		return pending[i], true
	}
	if i := indexByKey(pending, ref); i >= 0 {
		return pending[i], true
	}
	var zero T
	return zero, false
}

// FindCompleted looks a completed record up by id.
func (r *Repository[T]) FindCompleted(id string) (T, bool) {
	completed := r.view.Load().completed
	if i := indexByID(completed, id); i >= 0 {
		return completed[i], true
	}
	var zero T
	return zero, false
}

// lock serialises operations and raises the busy flag for their duration. The state is
// published again on release so readers see changes that emitted no event.
func (r *Repository[T]) lock() func() {
	r.mu.Lock()
	r.busy.Store(true)
	return func() {
		r.publish()
		r.busy.Store(false)
		r.mu.Unlock()
	}
}

// publish makes the current state visible to accessors. Must be called with r.mu held.
func (r *Repository[T]) publish() {
	r.view.Store(&snapshot[T]{
		pending:   slices.Clone(r.pending),
		completed: slices.Clone(r.completed),
		options:   slices.Clone(r.options),
		unsynced:  slices.Clone(r.unsynced),
	})
}

// Load refreshes the view from the remote store and folds in legacy local records. When
// the store is unreachable the mirrored pending list is shown instead and the error is
// returned so the caller can say the data may be stale.
func (r *Repository[T]) Load(ctx context.Context) error {
	defer r.lock()()
	logCtx := slog.With("collection", r.cfg.Name)

	doc, err := r.fetch(ctx)
	if err != nil {
		logCtx.Warn("Remote fetch failed, showing mirrored data", "error", err)
		var cached []T
		if _, merr := mirror.GetJSON(ctx, r.deps.Mirror, r.cfg.MirrorKey, &cached); merr != nil {
			logCtx.Error("Mirror read failed", "error", merr)
		} else {
			r.pending = cached
			r.emit()
		}
		return fmt.Errorf("failed to load %s: %w", r.cfg.Name, err)
	}

	if r.cfg.LegacyKey != "" {
		doc = r.migrate(ctx, doc)
	}
	var unsaved []T
	if len(r.unsynced) > 0 {
		doc, unsaved = r.pushUnsynced(ctx, doc)
	}
	r.apply(ctx, doc)
	r.unsynced = unsaved
	logCtx.Info("Loaded", "pending", len(doc.Pending), "completed", len(doc.Completed))
	return nil
}

// migrate merges records from the legacy mirror key into doc. The legacy key is deleted
// only after the merged document is saved; any failure leaves it for the next load.
func (r *Repository[T]) migrate(ctx context.Context, doc models.Ledger[T]) models.Ledger[T] {
	logCtx := slog.With("collection", r.cfg.Name, "legacyKey", r.cfg.LegacyKey)

	var legacy []T
	found, err := mirror.GetJSON(ctx, r.deps.Mirror, r.cfg.LegacyKey, &legacy)
	if err != nil {
		logCtx.Error("Legacy data unreadable, leaving it in place", "error", err)
		return doc
	}
	if !found {
		return doc
	}
	if len(legacy) == 0 {
		r.deleteLegacy(ctx, logCtx)
		return doc
	}

	merged := doc
	merged.Pending = slices.Clone(doc.Pending)
	added := 0
	for _, rec := range legacy {
		if indexByKey(merged.Pending, rec.RecordKey()) >= 0 {
			continue
		}
		if needsID(rec) {
			rec = rec.WithID(ids.next())
		}
		merged.Pending = append(merged.Pending, rec)
		added++
	}
	if added > 0 {
		if err := r.save(ctx, merged); err != nil {
			logCtx.Error("Saving migrated records failed, legacy data kept", "error", err)
			return doc
		}
	}
	r.deleteLegacy(ctx, logCtx)
	logCtx.Info("Migrated legacy records", "added", added, "skipped", len(legacy)-added)
	return merged
}

// pushUnsynced saves local-only records into a freshly fetched document. When that save
// fails the records are still shown and returned as unsaved for the next attempt.
func (r *Repository[T]) pushUnsynced(ctx context.Context, doc models.Ledger[T]) (models.Ledger[T], []T) {
	carried := doc
	carried.Pending = slices.Clone(doc.Pending)
	r.carryUnsynced(&carried)
	if len(r.unsynced) == 0 {
		return doc, nil
	}
	if err := r.save(ctx, carried); err != nil {
		slog.Warn("Local records still not saved", "collection", r.cfg.Name, "count", len(r.unsynced), "error", err)
		return carried, slices.Clone(r.unsynced)
	}
	slog.Info("Saved local records", "collection", r.cfg.Name, "count", len(r.unsynced))
	return carried, nil
}

func (r *Repository[T]) deleteLegacy(ctx context.Context, logCtx *slog.Logger) {
	if err := r.deps.Mirror.Delete(ctx, r.cfg.LegacyKey); err != nil {
		logCtx.Warn("Failed to delete legacy key", "error", err)
	}
}

// Add validates rec against the pending list, shows it immediately and then appends it
// to the latest remote document. If the store cannot be read or written the record stays
// local and ErrLocalOnly is returned.
func (r *Repository[T]) Add(ctx context.Context, rec T) (T, error) {
	defer r.lock()()
	return r.add(ctx, rec)
}

func (r *Repository[T]) add(ctx context.Context, rec T) (T, error) {
	if err := r.validate(rec); err != nil {
		return rec, err
	}
	if needsID(rec) || indexByID(r.pending, rec.RecordID()) >= 0 {
		rec = rec.WithID(ids.next())
	}

	r.pending = append(r.pending, rec)
	r.unsynced = append(r.unsynced, rec)
	r.writeMirror(ctx)
	r.emit()

	err := r.mutate(ctx, func(doc *models.Ledger[T]) error {
		r.unsynced = removeByID(r.unsynced, rec.RecordID())
		doc.Pending = append(doc.Pending, rec)
		return nil
	})
	if err != nil {
		slog.Warn("Record kept locally", "collection", r.cfg.Name, "key", rec.RecordKey(), "error", err)
		return rec, fmt.Errorf("%s %q: %w: %w", r.cfg.Name, rec.RecordKey(), ErrLocalOnly, err)
	}
	return rec, nil
}

// Validate runs the checks Add would run, against the published pending list, without
// changing anything.
func (r *Repository[T]) Validate(rec T) error {
	return r.validateAgainst(r.view.Load().pending, rec)
}

func (r *Repository[T]) validate(rec T) error {
	return r.validateAgainst(r.pending, rec)
}

func (r *Repository[T]) validateAgainst(pending []T, rec T) error {
	key := rec.RecordKey()
	if normalizeKey(key) == "" {
		return fmt.Errorf("%s key: %w", r.cfg.Name, ErrMissingKey)
	}
	if indexByKey(pending, key) >= 0 {
		return fmt.Errorf("%q: %w", key, ErrDuplicateKey)
	}
	return nil
}

// LoadForEditing removes a pending record and hands it back so it can be corrected and
// added again. Nothing changes when the remote store cannot be read.
func (r *Repository[T]) LoadForEditing(ctx context.Context, id string) (T, error) {
	defer r.lock()()
	return r.take(ctx, id)
}

// DeletePending removes a pending record from the remote document.
func (r *Repository[T]) DeletePending(ctx context.Context, id string) error {
	defer r.lock()()
	_, err := r.take(ctx, id)
	return err
}

func (r *Repository[T]) take(ctx context.Context, id string) (T, error) {
	var zero T
	i := indexByID(r.pending, id)
	if i < 0 {
		return zero, fmt.Errorf("%s %q: %w", r.cfg.Name, id, ErrNotFound)
	}
	rec := r.pending[i]

	err := r.mutate(ctx, func(doc *models.Ledger[T]) error {
		doc.Pending = removeByID(doc.Pending, id)
		r.unsynced = removeByID(r.unsynced, id)
		return nil
	})
	if err != nil {
		return zero, fmt.Errorf("failed to remove %s %q: %w", r.cfg.Name, rec.RecordKey(), err)
	}
	return rec, nil
}

// Complete moves a pending record to the completed list, carrying the attachment that
// was just uploaded. If the remote store cannot be read the uploaded file is named in the error so
// the user can reconcile by hand.
func (r *Repository[T]) Complete(ctx context.Context, id string, a models.Attachment) (T, error) {
	defer r.lock()()
	var zero T
	if r.cfg.Layout != LayoutLedger {
		return zero, fmt.Errorf("complete %s: %w", r.cfg.Name, ErrUnsupported)
	}
	i := indexByID(r.pending, id)
	if i < 0 {
		return zero, fmt.Errorf("%s %q: %w", r.cfg.Name, id, ErrNotFound)
	}

	var done T
	err := r.mutate(ctx, func(doc *models.Ledger[T]) error {
		j := indexByID(doc.Pending, id)
		if j < 0 {
			return fmt.Errorf("%s %q was removed by someone else: %w", r.cfg.Name, id, ErrNotFound)
		}
		done = withAttachment(doc.Pending[j], a)
		doc.Pending = removeByID(doc.Pending, id)
		doc.Completed = append(doc.Completed, done)
		return nil
	})
	if err != nil {
		if errors.Is(err, errFetch) {
			return zero, fmt.Errorf("%w: uploaded file %s (%s) is not recorded: %w", ErrUnknownRemoteState, a.FileName, a.FileURL, err)
		}
		return zero, fmt.Errorf("failed to complete %s %q: %w", r.cfg.Name, id, err)
	}
	return done, nil
}

// DeleteCompleted deletes the attachment of a completed record and then removes the
// record. The file delete is best-effort and runs first: a failure there is only logged,
// and the record removal still needs a successful fetch.
func (r *Repository[T]) DeleteCompleted(ctx context.Context, id string) error {
	defer r.lock()()
	if r.cfg.Layout != LayoutLedger {
		return fmt.Errorf("delete completed %s: %w", r.cfg.Name, ErrUnsupported)
	}
	i := indexByID(r.completed, id)
	if i < 0 {
		return fmt.Errorf("%s %q: %w", r.cfg.Name, id, ErrNotFound)
	}
	rec := r.completed[i]

	if a, ok := any(rec).(attachable[T]); ok && r.deps.Files != nil {
		if u := a.Attachment().FileURL; u != "" {
			if err := r.deps.Files.DeleteFile(ctx, u); err != nil {
				slog.Warn("Failed to delete attachment", "collection", r.cfg.Name, "url", u, "error", err)
			}
		}
	}

	err := r.mutate(ctx, func(doc *models.Ledger[T]) error {
		doc.Completed = removeByID(doc.Completed, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", r.cfg.Name, rec.RecordKey(), err)
	}
	return nil
}

// RemoveKeys drops pending records whose key is in keys (compared case-insensitively).
func (r *Repository[T]) RemoveKeys(ctx context.Context, keys []string) (int, error) {
	defer r.lock()()
	return r.removeKeys(ctx, keys)
}

func (r *Repository[T]) removeKeys(ctx context.Context, keys []string) (int, error) {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[normalizeKey(k)] = true
	}
	keep := func(rec T) bool { return !drop[normalizeKey(rec.RecordKey())] }

	removed := 0
	err := r.mutate(ctx, func(doc *models.Ledger[T]) error {
		before := len(doc.Pending)
		doc.Pending = slices.DeleteFunc(doc.Pending, func(rec T) bool { return !keep(rec) })
		removed = before - len(doc.Pending)
		r.unsynced = slices.DeleteFunc(r.unsynced, func(rec T) bool { return !keep(rec) })
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove %s records: %w", r.cfg.Name, err)
	}
	return removed, nil
}

// Handoff passes the pending records to send and, once it succeeds, clears the pending
// list in memory, in the mirror and remotely. The remote clear is a blind write of an
// empty list; if it fails the error wraps ErrLocalOnly.
func (r *Repository[T]) Handoff(ctx context.Context, send func(ctx context.Context, recs []T) error) (int, error) {
	defer r.lock()()
	if len(r.pending) == 0 {
		return 0, ErrNothingToSync
	}
	recs := slices.Clone(r.pending)
	if err := send(ctx, recs); err != nil {
		return 0, fmt.Errorf("failed to send %s, records kept: %w", r.cfg.Name, err)
	}

	r.pending = nil
	r.unsynced = nil
	r.writeMirror(ctx)
	r.emit()
	if _, err := r.deps.Remote.Save(ctx, r.cfg.RemoteKey, r.encode(models.Ledger[T]{Completed: r.completed, Options: r.options})); err != nil {
		return len(recs), fmt.Errorf("%d %s sent but the remote list was not cleared: %w: %w", len(recs), r.cfg.Name, ErrLocalOnly, err)
	}
	return len(recs), nil
}

// UpdateOptions applies fn to the option list of the latest remote document.
func (r *Repository[T]) UpdateOptions(ctx context.Context, fn func(opts []string) ([]string, error)) ([]string, error) {
	defer r.lock()()
	if r.cfg.Layout != LayoutLedger {
		return nil, fmt.Errorf("options of %s: %w", r.cfg.Name, ErrUnsupported)
	}
	err := r.mutate(ctx, func(doc *models.Ledger[T]) error {
		opts, err := fn(slices.Clone(doc.Options))
		if err != nil {
			return err
		}
		doc.Options = opts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.options), nil
}

var errFetch = errors.New("fetch failed")

// mutate runs fn against the freshest remote document, saves it and applies it locally.
// Must be called with r.mu held.
func (r *Repository[T]) mutate(ctx context.Context, fn func(doc *models.Ledger[T]) error) error {
	doc, err := r.fetch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errFetch, err)
	}
	unsynced := slices.Clone(r.unsynced)
	if err := fn(&doc); err != nil {
		r.unsynced = unsynced
		return err
	}
	r.carryUnsynced(&doc)
	if err := r.save(ctx, doc); err != nil {
		r.unsynced = unsynced
		return err
	}
	r.apply(ctx, doc)
	return nil
}

// carryUnsynced appends local-only records that the remote document does not know yet.
func (r *Repository[T]) carryUnsynced(doc *models.Ledger[T]) {
	if len(r.unsynced) == 0 {
		return
	}
	var still []T
	for _, rec := range r.unsynced {
		switch {
		case indexByID(doc.Pending, rec.RecordID()) >= 0, indexByID(doc.Completed, rec.RecordID()) >= 0:
		case indexByKey(doc.Pending, rec.RecordKey()) >= 0:
			slog.Warn("Dropping local record, key now taken remotely", "collection", r.cfg.Name, "key", rec.RecordKey())
		default:
			doc.Pending = append(doc.Pending, rec)
			still = append(still, rec)
		}
	}
	// Records the remote already has are no longer local-only. The rest stay marked until
	// a save succeeds and apply clears them.
	r.unsynced = still
}

func (r *Repository[T]) fetch(ctx context.Context) (models.Ledger[T], error) {
	var doc models.Ledger[T]
	switch r.cfg.Layout {
	case LayoutList:
		var list []T
		if err := r.deps.Remote.Fetch(ctx, r.cfg.RemoteKey, &list); err != nil {
			return doc, err
		}
		doc.Pending = list
	default:
		if err := r.deps.Remote.Fetch(ctx, r.cfg.RemoteKey, &doc); err != nil {
			return doc, err
		}
	}
	if doc.Pending == nil {
		doc.Pending = []T{}
	}
	if doc.Completed == nil {
		doc.Completed = []T{}
	}
	return doc, nil
}

func (r *Repository[T]) encode(doc models.Ledger[T]) any {
	if doc.Pending == nil {
		doc.Pending = []T{}
	}
	if r.cfg.Layout == LayoutList {
		return doc.Pending
	}
	if doc.Completed == nil {
		doc.Completed = []T{}
	}
	return doc
}

func (r *Repository[T]) save(ctx context.Context, doc models.Ledger[T]) error {
	if _, err := r.deps.Remote.Save(ctx, r.cfg.RemoteKey, r.encode(doc)); err != nil {
		return fmt.Errorf("failed to save %s: %w", r.cfg.Name, err)
	}
	return nil
}

// apply replaces the local view with a document that is known to be stored remotely.
func (r *Repository[T]) apply(ctx context.Context, doc models.Ledger[T]) {
	r.pending = doc.Pending
	r.completed = doc.Completed
	r.options = doc.Options
	r.unsynced = nil
	r.writeMirror(ctx)
	r.emit()
}

func (r *Repository[T]) writeMirror(ctx context.Context) {
	pending := r.pending
	if pending == nil {
		pending = []T{}
	}
	if err := mirror.SetJSON(ctx, r.deps.Mirror, r.cfg.MirrorKey, pending); err != nil {
		slog.Warn("Failed to write mirror", "collection", r.cfg.Name, "error", err)
	}
}

// emit publishes the current state and then notifies subscribers.
func (r *Repository[T]) emit() {
	r.publish()
	r.deps.Emitter.Emit(notify.EventPendingListsUpdated)
}

// needsID reports records without an id of their own. Job rows staged before ids existed
// report their code as id.
func needsID[T Record[T]](rec T) bool {
	return rec.RecordID() == "" || rec.RecordID() == rec.RecordKey()
}

func withAttachment[T any](rec T, a models.Attachment) T {
	if at, ok := any(rec).(attachable[T]); ok {
		return at.WithAttachment(a)
	}
	return rec
}

func indexByID[T Record[T]](recs []T, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(recs, func(rec T) bool { return rec.RecordID() == id })
}

func indexByKey[T Record[T]](recs []T, key string) int {
	k := normalizeKey(key)
	if k == "" {
		return -1
	}
	return slices.IndexFunc(recs, func(rec T) bool { return normalizeKey(rec.RecordKey()) == k })
}

func removeByID[T Record[T]](recs []T, id string) []T {
	return slices.DeleteFunc(slices.Clone(recs), func(rec T) bool { return rec.RecordID() == id })
}
