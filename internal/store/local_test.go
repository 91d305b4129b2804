package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalBackend, string) {
	t.Helper()
	root := t.TempDir()
	b, err := NewLocalBackend(root, zerolog.Nop())
	require.NoError(t, err)
	return b, root
}

func writeFile(t *testing.T, root, relPath string, data []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0700))
	require.NoError(t, os.WriteFile(full, data, 0600))
}

func TestLocalRead(t *testing.T) {
	b, root := newLocal(t)
	writeFile(t, root, "REALTIME/100p1_rt.nc", []byte("payload"))

	data, err := b.Read(context.Background(), "REALTIME/100p1_rt.nc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalReadNotFound(t *testing.T) {
	b, _ := newLocal(t)

	_, err := b.Read(context.Background(), "REALTIME/missing.nc")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalReadTo(t *testing.T) {
	b, root := newLocal(t)
	writeFile(t, root, "REALTIME/100p1_rt.nc", []byte("streamed"))

	var buf bytes.Buffer
	require.NoError(t, b.ReadTo(context.Background(), "REALTIME/100p1_rt.nc", &buf))
	assert.Equal(t, "streamed", buf.String())

	err := b.ReadTo(context.Background(), "REALTIME/missing.nc", &buf)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalList(t *testing.T) {
	b, root := newLocal(t)
	writeFile(t, root, "ARCHIVE/100p1/100p1_d01.nc", []byte("a"))
	writeFile(t, root, "ARCHIVE/100p1/100p1_d02.nc", []byte("b"))
	writeFile(t, root, "ARCHIVE/100p1/.hidden", []byte("c"))
	writeFile(t, root, "REALTIME/100p1_rt.nc", []byte("d"))

	paths, err := b.List(context.Background(), "ARCHIVE/100p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"ARCHIVE/100p1/100p1_d01.nc",
		"ARCHIVE/100p1/100p1_d02.nc",
	}, paths)
}

func TestLocalListMissingPrefix(t *testing.T) {
	b, _ := newLocal(t)

	paths, err := b.List(context.Background(), "ARCHIVE/nope")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalExists(t *testing.T) {
	b, root := newLocal(t)
	writeFile(t, root, "REALTIME/100p1_rt.nc", []byte("x"))

	ok, err := b.Exists(context.Background(), "REALTIME/100p1_rt.nc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(context.Background(), "REALTIME/142p1_rt.nc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStat(t *testing.T) {
	b, root := newLocal(t)
	writeFile(t, root, "REALTIME/100p1_rt.nc", []byte("12345"))

	info, err := b.Stat(context.Background(), "REALTIME/100p1_rt.nc")
	require.NoError(t, err)
	assert.Equal(t, "REALTIME/100p1_rt.nc", info.Path)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.LastModified.IsZero())

	_, err = b.Stat(context.Background(), "REALTIME/missing.nc")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalPathTraversalBlocked(t *testing.T) {
	b, _ := newLocal(t)

	// ".." components are neutralized rather than escaping the base
	_, err := b.Read(context.Background(), "../../../etc/passwd")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalType(t *testing.T) {
	b, _ := newLocal(t)
	assert.Equal(t, "local", b.Type())
	assert.NoError(t, b.Close())
}
