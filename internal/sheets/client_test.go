package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webApp(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := answers[r.URL.Query().Get("q")]
		if !ok {
			body = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup_ResponseShapes(t *testing.T) {
	srv := webApp(t, map[string]string{
		"ROW":    `{"Ma":"ROW","MaKH":1500000,"SoTien":"2,000,000"}`,
		"ROWS":   `[{"Ma":"ROWS","Thang":"Tháng 5"},{"Ma":"ROWS"}]`,
		"EMPTY":  `{}`,
		"BROKEN": `{"error":"Sheet not found"}`,
	})
	c, err := New(srv.URL, nil)
	require.NoError(t, err)
	ctx := context.Background()

	rows, err := c.Lookup(ctx, " ROW ")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.Amount("1500000"), rows[0].MaKH)
	assert.Equal(t, models.Amount("2,000,000"), rows[0].SoTien)

	rows, err = c.Lookup(ctx, "ROWS")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "Tháng 5", rows[0].Thang)

	rows, err = c.Lookup(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = c.Lookup(ctx, "BROKEN")
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "Sheet not found", le.Message)
}

func TestExists(t *testing.T) {
	srv := webApp(t, map[string]string{"KMLSHA00000001": `[{"Ma":"KMLSHA00000001"}]`})
	c, _ := New(srv.URL, nil)

	ok, err := c.Exists(context.Background(), "KMLSHA00000001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), "KMLSHA00000002")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookup_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c, _ := New(srv.URL, nil)

	_, err := c.Lookup(context.Background(), "X")
	assert.ErrorContains(t, err, "502")
}

func TestBulkAdd_IgnoresResponse(t *testing.T) {
	var got models.SheetBulkAddRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	c, _ := New(srv.URL, nil)

	err := c.BulkAdd(context.Background(), []models.JobEntry{{Ma: "A"}, {Ma: "B"}})
	require.NoError(t, err)
	assert.Equal(t, "bulkAdd", got.Action)
	assert.Len(t, got.Data, 2)

	srv.Close()
	err = c.BulkAdd(context.Background(), []models.JobEntry{{Ma: "A"}})
	assert.Error(t, err)
}
