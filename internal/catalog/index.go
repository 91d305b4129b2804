package catalog

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Manifest maps segment file names to the content hash published in the
// by-date-modified manifest.
type Manifest map[string]string

// Index persists manifest hashes in sqlite so consecutive pulls can report
// which station files changed since the last sync.
type Index struct {
	db          *sql.DB
	manifestURL string
	client      *http.Client
	logger      zerolog.Logger
}

// NewIndex opens (creating if needed) the modification index database
func NewIndex(dbPath, manifestURL string, logger zerolog.Logger) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS segment_hashes (
		filename   TEXT PRIMARY KEY,
		hash       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}

	return &Index{
		db:          db,
		manifestURL: manifestURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger.With().Str("component", "catalog-index").Logger(),
	}, nil
}

// Close closes the index database
func (ix *Index) Close() error {
	return ix.db.Close()
}

// FetchManifest downloads and parses the published manifest. Lines are
// tab-separated with the file name first and the content hash in the seventh
// field; a header line starting with "filename" is skipped.
func (ix *Index) FetchManifest(ctx context.Context) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ix.manifestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := ix.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	return ParseManifest(resp.Body), nil
}

// ParseManifest parses manifest text into a filename-to-hash map
func ParseManifest(r io.Reader) Manifest {
	m := Manifest{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "filename") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		m[fields[0]] = fields[6]
	}
	return m
}

// Changed compares a freshly fetched manifest against the stored hashes and
// returns the file names that are new or modified.
func (ix *Index) Changed(ctx context.Context, m Manifest) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT filename, hash FROM segment_hashes`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored hashes: %w", err)
	}
	defer rows.Close()

	stored := Manifest{}
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan hash row: %w", err)
		}
		stored[name] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// First sync: nothing stored means nothing reportable as changed
	if len(stored) == 0 {
		return nil, nil
	}

	var changed []string
	for name, hash := range m {
		if old, ok := stored[name]; !ok || old != hash {
			changed = append(changed, name)
		}
	}
	return changed, nil
}

// Save replaces the stored hashes with the given manifest
func (ix *Index) Save(ctx context.Context, m Manifest) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_hashes (filename, hash, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(filename) DO UPDATE SET
			hash = excluded.hash,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare index upsert: %w", err)
	}
	defer stmt.Close()

	for name, hash := range m {
		if _, err := stmt.ExecContext(ctx, name, hash); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index transaction: %w", err)
	}

	ix.logger.Debug().Int("files", len(m)).Msg("Saved manifest hashes")
	return nil
}

// Sync fetches the manifest, reports changed files and stores the new hashes
func (ix *Index) Sync(ctx context.Context) ([]string, error) {
	m, err := ix.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}

	changed, err := ix.Changed(ctx, m)
	if err != nil {
		return nil, err
	}

	if err := ix.Save(ctx, m); err != nil {
		return nil, err
	}

	ix.logger.Info().
		Int("files", len(m)).
		Int("changed", len(changed)).
		Msg("Synced modification manifest")

	return changed, nil
}

// LastDeployment scans a manifest for the highest archived deployment number
// of a station. Returns 0 when the station has no deployment files.
func LastDeployment(m Manifest, station string) int {
	last := 0
	prefix := station + "_d"
	for name := range m {
		if !strings.HasPrefix(name, prefix) || len(name) < len(prefix)+2 {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix) : len(prefix)+2])
		if err != nil {
			continue
		}
		if n > last {
			last = n
		}
	}
	return last
}
