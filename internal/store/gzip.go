package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Gunzip decompresses a gzip-compressed archive object
func Gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}

	return out, nil
}

// MaybeGunzip decompresses data when the path carries a .gz suffix.
// Older deployment archives are published compressed.
func MaybeGunzip(path string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(path, ".gz") {
		return data, nil
	}
	return Gunzip(data)
}
