package apiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct{}

func (stubExtractor) ExtractText(ctx context.Context, mimeType string, image []byte) (string, error) {
	return "text of " + string(image), nil
}

// newBackend serves the real functions over a memory blob store.
func newBackend(t *testing.T) (*httptest.Server, *blobstore.MemoryStore) {
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
	mux.Handle("/ocr", services.NewOCRWithExtractor(stubExtractor{}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mem
}

func newClient(t *testing.T, baseURL string, m mirror.Mirror) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Mirror: m})
	require.NoError(t, err)
	return c
}

func TestFetch_NeverWrittenLeavesDestination(t *testing.T) {
	srv, _ := newBackend(t)
	c := newClient(t, srv.URL, nil)

	dst := models.Ledger[models.MblPayment]{Pending: []models.MblPayment{}, Completed: []models.MblPayment{}}
	require.NoError(t, c.Fetch(context.Background(), "mbl_full_data", &dst))
	assert.NotNil(t, dst.Pending)
	assert.Empty(t, dst.Pending)
}

func TestSaveThenFetch_CachesURLHint(t *testing.T) {
	srv, _ := newBackend(t)
	m := mirror.NewMemory()
	c := newClient(t, srv.URL, m)
	ctx := context.Background()

	u, err := c.Save(ctx, "kimberry_data_entry_staging", []models.JobEntry{{Ma: "KMLSHA00000001", SoTien: "500"}})
	require.NoError(t, err)
	assert.Equal(t, "https://blob.test/db/kimberry_data_entry_staging.json", u)

	hint, found, _ := m.Get(ctx, "kimberry_data_entry_staging:store_url")
	require.True(t, found)
	assert.Equal(t, u, string(hint))

	var jobs []models.JobEntry
	require.NoError(t, c.Fetch(ctx, "kimberry_data_entry_staging", &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "KMLSHA00000001", jobs[0].Ma)
	assert.Equal(t, models.Amount("500"), jobs[0].SoTien)
}

func TestFetch_SendsHintAndCacheBuster(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"url":null}`))
	}))
	defer srv.Close()

	m := mirror.NewMemory()
	require.NoError(t, m.Set(context.Background(), "k:store_url", []byte("https://blob.test/db/k.json")))
	c := newClient(t, srv.URL, m)

	var dst []models.JobEntry
	require.NoError(t, c.Fetch(context.Background(), "k", &dst))
	q := gotQuery.Load().(url.Values)
	assert.Equal(t, []string{"k"}, q["key"])
	assert.Equal(t, []string{"https://blob.test/db/k.json"}, q["url"])
	assert.NotEmpty(t, q["_t"])
}

func TestFetch_FailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
		{"wrong shape", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":"a string","url":null}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := newClient(t, srv.URL, nil)

			var dst []models.JobEntry
			err := c.Fetch(context.Background(), "k", &dst)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := newClient(t, srv.URL, nil)
		var dst []models.JobEntry
		assert.ErrorIs(t, c.Fetch(context.Background(), "k", &dst), ErrUnavailable)
	})
}

func TestSave_StatusErrorCarriesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error","details":"quota exceeded"}`))
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, nil)

	_, err := c.Save(context.Background(), "k", []int{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "Internal Server Error", se.Message)
	assert.Equal(t, "quota exceeded", se.Details)
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestSave_NonJSONErrorIsTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 300)))
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, nil)

	_, err := c.Save(context.Background(), "k", []int{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Message, 103)
}

func TestSave_ErrorTextKeepsWholeCharacters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("x" + strings.Repeat("Lỗi máy chủ ", 30)))
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, nil)

	_, err := c.Save(context.Background(), "k", []int{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, utf8.ValidString(se.Message))
	assert.Equal(t, 103, utf8.RuneCountInString(se.Message))
	assert.True(t, strings.HasSuffix(se.Message, "..."))
}

func TestFileService(t *testing.T) {
	srv, mem := newBackend(t)
	c := newClient(t, srv.URL, nil)
	ctx := context.Background()

	u, err := c.Upload(ctx, "MBL", "MBL-ONE-1", "hóa đơn.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "https://blob.test/MBL/MBL-ONE-1/hoa_don.pdf", u)

	files, err := c.ListFiles(ctx, "MBL/")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, u, files[0].URL)

	require.NoError(t, c.DeleteFile(ctx, u))
	_, err = mem.Get(ctx, "MBL/MBL-ONE-1/hoa_don.pdf")
	assert.ErrorIs(t, err, blobstore.ErrNotExist)

	_, err = c.Upload(ctx, "NOPE", "1", "a.pdf", strings.NewReader("x"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
}

func TestOCR(t *testing.T) {
	srv, _ := newBackend(t)
	c := newClient(t, srv.URL, nil)

	text, err := c.OCR(context.Background(), "image/png", base64.StdEncoding.EncodeToString([]byte("scan")), "")
	require.NoError(t, err)
	assert.Equal(t, "text of scan", text)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
