package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalBackend implements the Backend interface for a local archive mirror,
// e.g. an rsync copy of the THREDDS file tree.
type LocalBackend struct {
	basePath string
	logger   zerolog.Logger
}

// NewLocalBackend creates a local filesystem store rooted at basePath
func NewLocalBackend(basePath string, logger zerolog.Logger) (*LocalBackend, error) {
	// Convert to absolute path to avoid issues with filepath.Rel during List operations
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &LocalBackend{
		basePath: absPath,
		logger:   logger.With().Str("component", "local-store").Logger(),
	}, nil
}

// Read reads the full object at the specified path
func (b *LocalBackend) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// ReadTo streams the object at the specified path into the writer
func (b *LocalBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}

	return nil
}

// List lists all object paths with the given prefix
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath, err := b.validatePath(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix: %w", err)
	}
	var results []string

	err = filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if d.IsDir() {
			return nil
		}

		// Skip hidden files (e.g., .DS_Store on macOS)
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return err
		}

		results = append(results, filepath.ToSlash(relPath))
		return nil
	})

	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return results, nil
}

// Exists checks if an object exists at the specified path
func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return false, fmt.Errorf("invalid path: %w", err)
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// Stat returns metadata for the object at the specified path
func (b *LocalBackend) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	fullPath, err := b.validatePath(path)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", path, ErrObjectNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return ObjectInfo{
		Path:         path,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// Close closes any resources held by the backend (no-op for local storage)
func (b *LocalBackend) Close() error {
	return nil
}

// GetBasePath returns the base path for the local store
func (b *LocalBackend) GetBasePath() string {
	return b.basePath
}

// Type returns the store type identifier
func (b *LocalBackend) Type() string {
	return "local"
}

// sanitizePath removes any potentially dangerous path components
func sanitizePath(path string) string {
	path = strings.TrimPrefix(path, "/")
	path = strings.ReplaceAll(path, "..", "_")
	path = strings.ReplaceAll(path, "\x00", "")
	return path
}

// validatePath ensures the resolved path stays within the base path (prevents path traversal)
func (b *LocalBackend) validatePath(path string) (string, error) {
	sanitized := sanitizePath(path)

	fullPath := filepath.Join(b.basePath, sanitized)
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	relPath, err := filepath.Rel(b.basePath, absPath)
	if err != nil {
		return "", fmt.Errorf("path traversal detected")
	}

	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path traversal detected: path escapes base directory")
	}

	return absPath, nil
}
