package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/services"
)

type fakeSheet struct {
	mu   sync.Mutex
	rows map[string]models.JobEntry
	bulk []models.JobEntry
}

func (s *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Method == http.MethodPost {
		var req models.SheetBulkAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.bulk = append(s.bulk, req.Data...)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
		return
	}
	row, ok := s.rows[r.URL.Query().Get("q")]
	if !ok {
		_, _ = w.Write([]byte(`{}`))
		return
	}
	_ = json.NewEncoder(w).Encode(row)
}

type testEnv struct {
	api    string
	sheets string
	mirror string
	sheet  *fakeSheet
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := blobstore.NewMemoryStore("https://blob.test/")
	mux := http.NewServeMux()
	mux.Handle("/store", services.NewStoreWithBackend(mem))
	mux.Handle("/upload", services.NewUploadWithBackend(mem, services.UploadConfig{
		MaxBytes:       services.MaxUploadBytes,
		AllowedFolders: []string{"CVHC", "MBL", "DONE"},
	}))
	mux.Handle("/delete", services.NewDeleteFileWithBackend(mem))
	mux.Handle("/files", services.NewFilesWithBackend(mem))
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	sheet := &fakeSheet{rows: map[string]models.JobEntry{}}
	sheets := httptest.NewServer(sheet)
	t.Cleanup(sheets.Close)

	dir := t.TempDir()
	return &testEnv{
		api:    api.URL,
		sheets: sheets.URL,
		mirror: filepath.Join(dir, "mirror.db"),
		sheet:  sheet,
		dir:    dir,
	}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api", e.api, "--sheets", e.sheets, "--mirror", e.mirror, "--user", "ops@test"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) file(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestJobs_AddListSync(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "jobs", "add", "--text", "54,000,000 VND KMLSHA 2501 0023 15/03/2025", "--nd1", "cuoc")
	require.NoError(t, err)
	assert.Contains(t, out, "Staged KMLSHA25010023")
	assert.Contains(t, out, "Pending: 1 jobs")

	out, err = env.run(t, "jobs", "add", "--ma", "kmlsha25010023")
	require.Error(t, err)
	assert.Contains(t, out, "already in the pending list")

	out, err = env.run(t, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "KMLSHA25010023")
	assert.Contains(t, out, "Tháng 3")
	assert.Contains(t, out, "54000000")

	out, err = env.run(t, "jobs", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent 1 rows")
	require.Len(t, env.sheet.bulk, 1)
	assert.Equal(t, "cuoc", env.sheet.bulk[0].NoiDung1)

	_, err = env.run(t, "jobs", "sync")
	assert.Error(t, err)
}

func TestJobs_CheckExisting(t *testing.T) {
	env := newTestEnv(t)
	env.sheet.rows["KMLTAO00000001"] = models.JobEntry{Ma: "KMLTAO00000001"}

	for _, ma := range []string{"KMLTAO00000001", "KMLTAO00000002"} {
		_, err := env.run(t, "jobs", "add", "--ma", ma)
		require.NoError(t, err)
	}

	out, err := env.run(t, "jobs", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 rows")

	out, err = env.run(t, "jobs", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "KMLTAO00000001")
	assert.Contains(t, out, "KMLTAO00000002")
}

func TestJobs_OfflineAddIsLocalOnly(t *testing.T) {
	env := newTestEnv(t)
	env.api = "http://127.0.0.1:1"

	out, err := env.run(t, "jobs", "add", "--ma", "KMLSHA00000001")
	require.NoError(t, err)
	assert.Contains(t, out, "showing local data")
	assert.Contains(t, out, "saved locally only")

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Regexp(t, `jobs\s+1`, out)
}

func TestMbl_AddCompleteAndNotify(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.file(t, "invoice.pdf", "%PDF-1.4 invoice")
	unc := env.file(t, "unc.pdf", "%PDF-1.4 unc")

	out, err := env.run(t, "mbl", "add", "--line", "ONE", "--amount", "1,000,000", "--mbl", "ONEY123", "--invoice", invoice)
	require.NoError(t, err)
	m := regexp.MustCompile(`Staged payment (\d+) for ONE`).FindStringSubmatch(out)
	require.NotNil(t, m, out)
	id := m[1]

	out, err = env.run(t, "mbl", "complete", id, "--unc", unc)
	require.NoError(t, err)
	assert.Contains(t, out, "Completed payment "+id)

	out, err = env.run(t, "mbl", "list", "--completed")
	require.NoError(t, err)
	assert.Contains(t, out, "unc.pdf")

	out, err = env.run(t, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, models.ActionMblPayment)
	assert.Contains(t, out, "Mã Line: ONE")
	assert.Contains(t, out, "ops@test")

	out, err = env.run(t, "files", "list", "DONE/")
	require.NoError(t, err)
	assert.Contains(t, out, "DONE/DONE-ONE-"+id+"/unc.pdf")
}

func TestMbl_Lines(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "mbl", "add-line", "yang-ming")
	require.NoError(t, err)
	assert.Contains(t, out, "23 entries")

	out, err = env.run(t, "mbl", "lines")
	require.NoError(t, err)
	assert.Contains(t, out, "YANG-MING")
}

func TestBanking(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "banking", "add", "--bank", "VCB", "--holder", "CTY KIMBERRY")
	require.Error(t, err)

	out, err := env.run(t, "banking", "add", "--bank", "VCB", "--account", "0071000123456", "--holder", "CTY KIMBERRY")
	require.NoError(t, err)
	assert.Contains(t, out, "Added CTY KIMBERRY")

	out, err = env.run(t, "banking", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0071000123456")
}

func TestJobs_Parse(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "jobs", "parse", "1,200 KMLTAO 1234 5678")
	require.NoError(t, err)
	assert.Contains(t, out, `"Ma": "KMLTAO12345678"`)
	assert.Contains(t, out, `"MaKH": 1200`)
}

// flakyStore fails reads while down is set, like a blob backend returning 503s.
type flakyStore struct {
	*blobstore.MemoryStore
	down *atomic.Bool
}

func (s flakyStore) Get(ctx context.Context, pathname string) (io.ReadCloser, error) {
	if s.down.Load() {
		return nil, errors.New("gcs: 503 backend unavailable")
	}
	return s.MemoryStore.Get(ctx, pathname)
}

func TestJobs_StoreReadFailureNeverOverwritesRemote(t *testing.T) {
	mem := blobstore.NewMemoryStore("https://blob.test/")
	down := &atomic.Bool{}
	api := httptest.NewServer(services.NewStoreWithBackend(flakyStore{MemoryStore: mem, down: down}))
	t.Cleanup(api.Close)

	seeded := `[{"id":"1","Ma":"KMLSHA00000001"},{"id":"2","Ma":"KMLSHA00000002"}]`
	_, err := mem.Put(context.Background(), "db/kimberry_data_entry_staging.json", strings.NewReader(seeded), blobstore.PutOptions{})
	require.NoError(t, err)
	down.Store(true)

	env := &testEnv{api: api.URL, mirror: filepath.Join(t.TempDir(), "mirror.db")}
	out, err := env.run(t, "jobs", "add", "--ma", "KMLSHA00000003")
	require.NoError(t, err)
	assert.Contains(t, out, "saved locally only")

	r, err := mem.Get(context.Background(), "db/kimberry_data_entry_staging.json")
	require.NoError(t, err)
	defer r.Close()
	stored, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.JSONEq(t, seeded, string(stored))
}
