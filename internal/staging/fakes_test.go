package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/notify"
)

var errUnavailable = errors.New("store returned 500")

// fakeRemote is an in-memory document store that counts calls.
type fakeRemote struct {
	mu        sync.Mutex
	docs      map[string][]byte
	fetches   int
	saves     int
	failFetch bool
	failSave  bool
	onFetch   func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: map[string][]byte{}}
}

func (f *fakeRemote) Fetch(ctx context.Context, key string, dst any) error {
	f.mu.Lock()
	hook := f.onFetch
	f.fetches++
	fail := f.failFetch
	data, ok := f.docs[key]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return fmt.Errorf("fetch %s: %w", key, errUnavailable)
	}
	if !ok {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func (f *fakeRemote) Save(ctx context.Context, key string, v any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return "", fmt.Errorf("save %s: %w", key, errUnavailable)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	f.saves++
	f.docs[key] = data
	return "https://blob.local/db/" + key + ".json", nil
}

func (f *fakeRemote) put(t *testing.T, key string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.mu.Lock()
	f.docs[key] = data
	f.mu.Unlock()
}

func (f *fakeRemote) raw(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.docs[key]
	return data, ok
}

func (f *fakeRemote) decode(t *testing.T, key string, dst any) {
	t.Helper()
	data, ok := f.raw(key)
	require.True(t, ok, "remote has no %s", key)
	require.NoError(t, json.Unmarshal(data, dst))
}

func (f *fakeRemote) counts() (fetches, saves int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, f.saves
}

func (f *fakeRemote) setFailFetch(v bool) {
	f.mu.Lock()
	f.failFetch = v
	f.mu.Unlock()
}

// fakeFiles records uploads and deletions.
type fakeFiles struct {
	mu         sync.Mutex
	uploaded   []string
	deleted    []string
	failUpload bool
	failDelete bool
}

func (f *fakeFiles) Upload(ctx context.Context, folder, jobID, filename string, body io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return "", errors.New("upload rejected")
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	u := fmt.Sprintf("https://blob.local/%s/%s/%s", folder, jobID, filename)
	f.uploaded = append(f.uploaded, u)
	return u, nil
}

func (f *fakeFiles) DeleteFile(ctx context.Context, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("delete rejected")
	}
	f.deleted = append(f.deleted, fileURL)
	return nil
}

// fakeRegister is the spreadsheet register.
type fakeRegister struct {
	mu        sync.Mutex
	rows      map[string]models.JobEntry
	failCodes map[string]bool
	bulk      [][]models.JobEntry
	bulkErr   error

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeRegister() *fakeRegister {
	return &fakeRegister{rows: map[string]models.JobEntry{}, failCodes: map[string]bool{}}
}

func (f *fakeRegister) Lookup(ctx context.Context, code string) ([]models.JobEntry, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCodes[code] {
		return nil, errors.New("register timeout")
	}
	if row, ok := f.rows[strings.ToUpper(code)]; ok {
		return []models.JobEntry{row}, nil
	}
	return nil, nil
}

func (f *fakeRegister) Exists(ctx context.Context, code string) (bool, error) {
	rows, err := f.Lookup(ctx, code)
	return len(rows) > 0, err
}

func (f *fakeRegister) BulkAdd(ctx context.Context, entries []models.JobEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.bulk = append(f.bulk, entries)
	return nil
}

type harness struct {
	remote  *fakeRemote
	files   *fakeFiles
	mirror  *mirror.Memory
	emitter *notify.Emitter
	events  *atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		remote:  newFakeRemote(),
		files:   &fakeFiles{},
		mirror:  mirror.NewMemory(),
		emitter: notify.NewEmitter(),
		events:  &atomic.Int32{},
	}
	unsubscribe := h.emitter.Subscribe(notify.EventPendingListsUpdated, func(cloudevents.Event) { h.events.Add(1) })
	t.Cleanup(unsubscribe)
	return h
}

func (h *harness) deps() Deps {
	return Deps{Remote: h.remote, Files: h.files, Mirror: h.mirror, Emitter: h.emitter}
}

func (h *harness) mirrored(t *testing.T, key string, dst any) bool {
	t.Helper()
	ok, err := mirror.GetJSON(context.Background(), h.mirror, key, dst)
	require.NoError(t, err)
	return ok
}

func pdfUpload(name string) FileUpload {
	body := "%PDF-1.4 test"
	return FileUpload{Name: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}
