package mirror

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Mirror {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Mirror{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestMirror_Contract(t *testing.T) {
	ctx := context.Background()
	for name, m := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := m.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, m.Set(ctx, "kimberry-mbl-payment-data", []byte(`[1]`)))
			require.NoError(t, m.Set(ctx, "kimberry-mbl-payment-data", []byte(`[1,2]`)))
			v, found, err := m.Get(ctx, "kimberry-mbl-payment-data")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, `[1,2]`, string(v))

			require.NoError(t, m.Set(ctx, "kimberry-banking-data", []byte(`[]`)))
			require.NoError(t, m.Set(ctx, "other", []byte(`{}`)))
			keys, err := m.Keys(ctx, "kimberry-")
			require.NoError(t, err)
			assert.Equal(t, []string{"kimberry-banking-data", "kimberry-mbl-payment-data"}, keys)

			require.NoError(t, m.Delete(ctx, "kimberry-mbl-payment-data"))
			require.NoError(t, m.Delete(ctx, "kimberry-mbl-payment-data"))
			_, found, _ = m.Get(ctx, "kimberry-mbl-payment-data")
			assert.False(t, found)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	type row struct {
		Ma string `json:"Ma"`
	}
	dst := []row{{Ma: "untouched"}}
	found, err := GetJSON(ctx, m, "jobs", &dst)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "untouched", dst[0].Ma)

	require.NoError(t, SetJSON(ctx, m, "jobs", []row{{Ma: "KMLSHA1"}}))
	found, err = GetJSON(ctx, m, "jobs", &dst)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []row{{Ma: "KMLSHA1"}}, dst)

	require.NoError(t, m.Set(ctx, "broken", []byte("{")))
	_, err = GetJSON(ctx, m, "broken", &dst)
	assert.ErrorContains(t, err, "broken")
}

func TestSQLite_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mirror.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte(`"v"`)))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()
	v, found, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"v"`, string(v))
}
