package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	text     string
	err      error
	gotMime  string
	gotImage []byte
}

func (e *fakeExtractor) ExtractText(ctx context.Context, mimeType string, image []byte) (string, error) {
	e.gotMime = mimeType
	e.gotImage = image
	return e.text, e.err
}

func TestOCR_Process(t *testing.T) {
	ext := &fakeExtractor{text: "KMLSHA 123\nSố tiền: 1.000.000"}
	f := NewOCRWithExtractor(ext)

	res, err := f.Process(context.Background(), &models.OCRRequest{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		MimeType:    "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, ext.text, res.Text)
	assert.Equal(t, "image/png", ext.gotMime)
	assert.Equal(t, []byte("png-bytes"), ext.gotImage)
}

func TestOCR_AcceptsDataURL(t *testing.T) {
	ext := &fakeExtractor{text: "ok"}
	f := NewOCRWithExtractor(ext)

	_, err := f.Process(context.Background(), &models.OCRRequest{
		ImageBase64: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpg")),
		MimeType:    "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("jpg"), ext.gotImage)
}

func TestOCR_EmptyAnswer(t *testing.T) {
	f := NewOCRWithExtractor(&fakeExtractor{text: "  "})
	res, err := f.Process(context.Background(), &models.OCRRequest{ImageBase64: "eA==", MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, emptyOCRText, res.Text)
}

func TestOCR_HTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		ext    *fakeExtractor
		body   string
		status int
	}{
		{"missing image", &fakeExtractor{}, `{"mimeType":"image/png"}`, http.StatusBadRequest},
		{"bad base64", &fakeExtractor{}, `{"imageBase64":"***","mimeType":"image/png"}`, http.StatusBadRequest},
		{"bad json", &fakeExtractor{}, `{`, http.StatusBadRequest},
		{"model failure", &fakeExtractor{err: errors.New("quota")}, `{"imageBase64":"eA==","mimeType":"image/png"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewOCRWithExtractor(tt.ext).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)

			var res models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestExtractText_ConcatenatesTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("line 1\n"), genai.Text("line 2")}},
		}},
	}
	assert.Equal(t, "line 1\nline 2", extractText(resp))
	assert.Equal(t, "", extractText(nil))
}
