package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/opsportal/internal/blobstore"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUpload() (*UploadFunction, *blobstore.MemoryStore) {
	mem := blobstore.NewMemoryStore("https://blob.test/")
	return NewUploadWithBackend(mem, UploadConfig{
		MaxBytes:       MaxUploadBytes,
		AllowedFolders: []string{"CVHC", "MBL", "DONE"},
	}), mem
}

func TestSanitizeFilename(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	tests := []struct {
		in, want string
	}{
		{"Hóa đơn tháng 5.pdf", "Hoa_don_thang_5.pdf"},
		{"ĐỀ NGHỊ.PDF", "DE_NGHI.PDF"},
		{"report.v2.final.xlsx", "report.v2.final.xlsx"},
		{"no-extension", "no-extension"},
		{"a/b\\c.png", "a_b_c.png"},
		{"", "file_1700000000000"},
		{".", "file_1700000000000"},
		{"..", "file_1700000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in, now))
		})
	}
}

func TestUpload_StoresUnderFolderAndJob(t *testing.T) {
	f, mem := newTestUpload()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload?filename=H%C3%B3a%20%C4%91%C6%A1n.pdf&jobId=KMLSHA123&uploadPath=MBL", strings.NewReader("%PDF-1.4"))
	f.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "https://blob.test/MBL/KMLSHA123/Hoa_don.pdf", res.URL)

	rc, err := mem.Get(context.Background(), "MBL/KMLSHA123/Hoa_don.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestUpload_NameCollisionKeepsBoth(t *testing.T) {
	f, mem := newTestUpload()
	ctx := context.Background()

	first, err := f.Process(ctx, UploadRequest{Filename: "unc.pdf", JobID: "J1", Folder: "DONE", Body: strings.NewReader("one")})
	require.NoError(t, err)
	second, err := f.Process(ctx, UploadRequest{Filename: "unc.pdf", JobID: "J1", Folder: "DONE", Body: strings.NewReader("two")})
	require.NoError(t, err)

	assert.NotEqual(t, first.URL, second.URL)
	objs, err := mem.List(ctx, "DONE/J1/", 0)
	require.NoError(t, err)
	assert.Len(t, objs, 2)
}

func TestUpload_Rejections(t *testing.T) {
	f, _ := newTestUpload()
	big := bytes.Repeat([]byte("x"), MaxUploadBytes+1)

	tests := []struct {
		name   string
		url    string
		body   io.Reader
		status int
	}{
		{"missing filename", "/upload?jobId=1&uploadPath=MBL", strings.NewReader("x"), http.StatusBadRequest},
		{"folder not allowed", "/upload?filename=a.pdf&jobId=1&uploadPath=db", strings.NewReader("x"), http.StatusBadRequest},
		{"too large", "/upload?filename=a.pdf&jobId=1&uploadPath=MBL", bytes.NewReader(big), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.url, tt.body))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestUpload_TooLargeWithoutContentLength(t *testing.T) {
	f, mem := newTestUpload()

	_, err := f.Process(context.Background(), UploadRequest{
		Filename:      "a.pdf",
		JobID:         "1",
		Folder:        "CVHC",
		ContentLength: -1,
		Body:          bytes.NewReader(bytes.Repeat([]byte("x"), MaxUploadBytes+10)),
	})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, reqErr.Status)

	objs, _ := mem.List(context.Background(), "", 0)
	assert.Empty(t, objs)
}

func TestDeleteFile(t *testing.T) {
	mem := blobstore.NewMemoryStore("https://blob.test/")
	f := NewDeleteFileWithBackend(mem)
	ctx := context.Background()
	obj, err := mem.Put(ctx, "MBL/J1/unc.pdf", strings.NewReader("x"), blobstore.PutOptions{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/delete", strings.NewReader(`{"url":"`+obj.URL+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = mem.Get(ctx, "MBL/J1/unc.pdf")
	assert.ErrorIs(t, err, blobstore.ErrNotExist)

	// Already gone still succeeds.
	_, err = f.Process(ctx, models.DeleteFileRequest{URL: obj.URL})
	assert.NoError(t, err)

	_, err = f.Process(ctx, models.DeleteFileRequest{})
	assert.ErrorContains(t, err, "URL parameter is required")

	_, err = f.Process(ctx, models.DeleteFileRequest{URL: "https://elsewhere.test/MBL/J1/unc.pdf"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
}

func TestFiles_List(t *testing.T) {
	mem := blobstore.NewMemoryStore("https://blob.test/")
	f := NewFilesWithBackend(mem)
	ctx := context.Background()
	_, _ = mem.Put(ctx, "CVHC/J1/a.pdf", strings.NewReader("a"), blobstore.PutOptions{})
	_, _ = mem.Put(ctx, "MBL/J2/b.pdf", strings.NewReader("bb"), blobstore.PutOptions{})

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files?prefix=MBL/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.ListFilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Files, 1)
	assert.Equal(t, "https://blob.test/MBL/J2/b.pdf", res.Files[0].URL)

	rec = httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
