package store

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestGunzip(t *testing.T) {
	payload := []byte("deployment archive bytes")

	out, err := Gunzip(gzipped(t, payload))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestGunzipRejectsGarbage(t *testing.T) {
	_, err := Gunzip([]byte("not a gzip stream"))
	assert.Error(t, err)
}

func TestMaybeGunzip(t *testing.T) {
	payload := []byte("plain bytes")

	out, err := MaybeGunzip("ARCHIVE/100p1/100p1_d01.nc", payload)
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	out, err = MaybeGunzip("ARCHIVE/100p1/100p1_d01.nc.gz", gzipped(t, payload))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
