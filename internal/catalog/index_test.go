package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestSample = "filename\tsize\tmtime\towner\tgroup\tperms\thash\n" +
	"100p1_rt.nc\t123\t2024-06-01\tcdip\tcdip\t644\tabc111\n" +
	"100p1_d01.nc\t456\t2020-01-01\tcdip\tcdip\t644\tabc222\n" +
	"100p1_d02.nc\t789\t2021-01-01\tcdip\tcdip\t644\tabc333\n" +
	"\n" +
	"short line without enough fields\n" +
	"142p1_d11.nc\t789\t2021-01-01\tcdip\tcdip\t644\tabc444\n"

func newTestIndex(t *testing.T, manifestURL string) *Index {
	t.Helper()
	ix, err := NewIndex(filepath.Join(t.TempDir(), "index.db"), manifestURL, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestParseManifest(t *testing.T) {
	m := ParseManifest(strings.NewReader(manifestSample))

	assert.Len(t, m, 4)
	assert.Equal(t, "abc111", m["100p1_rt.nc"])
	assert.Equal(t, "abc222", m["100p1_d01.nc"])
	assert.Equal(t, "abc444", m["142p1_d11.nc"])
}

func TestLastDeployment(t *testing.T) {
	m := ParseManifest(strings.NewReader(manifestSample))

	assert.Equal(t, 2, LastDeployment(m, "100p1"))
	assert.Equal(t, 11, LastDeployment(m, "142p1"))
	assert.Equal(t, 0, LastDeployment(m, "271p1"))
}

func TestChangedFirstSyncReportsNothing(t *testing.T) {
	ix := newTestIndex(t, "")
	m := Manifest{"100p1_rt.nc": "abc111"}

	changed, err := ix.Changed(context.Background(), m)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestChangedDetectsNewAndModified(t *testing.T) {
	ix := newTestIndex(t, "")
	ctx := context.Background()

	require.NoError(t, ix.Save(ctx, Manifest{
		"100p1_rt.nc":  "abc111",
		"100p1_d01.nc": "abc222",
	}))

	changed, err := ix.Changed(ctx, Manifest{
		"100p1_rt.nc":  "abc999", // modified
		"100p1_d01.nc": "abc222", // unchanged
		"142p1_rt.nc":  "new000", // new
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"100p1_rt.nc", "142p1_rt.nc"}, changed)
}

func TestSaveUpserts(t *testing.T) {
	ix := newTestIndex(t, "")
	ctx := context.Background()

	require.NoError(t, ix.Save(ctx, Manifest{"100p1_rt.nc": "abc111"}))
	require.NoError(t, ix.Save(ctx, Manifest{"100p1_rt.nc": "abc222"}))

	changed, err := ix.Changed(ctx, Manifest{"100p1_rt.nc": "abc222"})
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestSync(t *testing.T) {
	manifest := manifestSample
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifest))
	}))
	defer srv.Close()

	ix := newTestIndex(t, srv.URL)
	ctx := context.Background()

	// First sync stores hashes without reporting changes
	changed, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)

	// Second sync with a modified hash reports the file
	manifest = strings.Replace(manifest, "abc111", "zzz999", 1)
	changed, err = ix.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100p1_rt.nc"}, changed)
}

func TestSyncFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ix := newTestIndex(t, srv.URL)
	_, err := ix.Sync(context.Background())
	assert.Error(t, err)
}
