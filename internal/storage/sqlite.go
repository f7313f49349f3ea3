package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database holding the prediction catalog.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "embrysync.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// A second concurrent run waits briefly on the busy timeout and then
	// fails loudly instead of corrupting state.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Filenames returns the set of all stored image filenames. The catalog is
// small enough to hold the full set in memory for filtering.
func (s *Store) Filenames() (map[string]struct{}, error) {
	rows, err := s.db.Query("SELECT filename FROM image_predictions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// Count returns the number of stored image predictions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM image_predictions").Scan(&n)
	return n, err
}

// GetPrediction returns the stored record for a single filename.
func (s *Store) GetPrediction(filename string) (ImagePrediction, error) {
	var p ImagePrediction
	var stageJSON, locationsJSON, addedAt string
	err := s.db.QueryRow(`
		SELECT filename, stage_preds, locations_preds, added_at
		FROM image_predictions WHERE filename = ?`, filename,
	).Scan(&p.Filename, &stageJSON, &locationsJSON, &addedAt)
	if err == sql.ErrNoRows {
		return ImagePrediction{}, ErrNotFound
	}
	if err != nil {
		return ImagePrediction{}, err
	}

	if err := json.Unmarshal([]byte(stageJSON), &p.Stage); err != nil {
		return ImagePrediction{}, fmt.Errorf("decoding stage predictions for %s: %w", filename, err)
	}
	if err := json.Unmarshal([]byte(locationsJSON), &p.Locations); err != nil {
		return ImagePrediction{}, fmt.Errorf("decoding locations predictions for %s: %w", filename, err)
	}
	t, err := time.Parse(time.RFC3339, addedAt)
	if err != nil {
		return ImagePrediction{}, fmt.Errorf("parsing added_at for %s: %w", filename, err)
	}
	p.AddedAt = t
	return p, nil
}

// AppendPredictions inserts all records in a single transaction, so a run's
// results land in the catalog completely or not at all. A duplicate filename
// fails the whole batch via the primary key constraint.
func (s *Store) AppendPredictions(preds []ImagePrediction) error {
	if len(preds) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range preds {
		if len(p.Stage) == 0 || len(p.Locations) == 0 {
			return fmt.Errorf("record %s is missing a prediction vector", p.Filename)
		}
		stageJSON, err := json.Marshal(p.Stage)
		if err != nil {
			return fmt.Errorf("encoding stage predictions for %s: %w", p.Filename, err)
		}
		locationsJSON, err := json.Marshal(p.Locations)
		if err != nil {
			return fmt.Errorf("encoding locations predictions for %s: %w", p.Filename, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO image_predictions (filename, stage_preds, locations_preds, added_at)
			VALUES (?, ?, ?, ?)`,
			p.Filename, string(stageJSON), string(locationsJSON),
			p.AddedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting %s: %w", p.Filename, err)
		}
	}

	return tx.Commit()
}

// Verify scans every record and checks that both prediction vectors are
// present and decodable. Returns the number of records scanned and the
// first violation found.
func (s *Store) Verify() (int, error) {
	rows, err := s.db.Query("SELECT filename, stage_preds, locations_preds FROM image_predictions")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	scanned := 0
	for rows.Next() {
		var filename, stageJSON, locationsJSON string
		if err := rows.Scan(&filename, &stageJSON, &locationsJSON); err != nil {
			return scanned, err
		}

		var stage, locations []float32
		if err := json.Unmarshal([]byte(stageJSON), &stage); err != nil {
			return scanned, fmt.Errorf("record %s: undecodable stage predictions: %w", filename, err)
		}
		if err := json.Unmarshal([]byte(locationsJSON), &locations); err != nil {
			return scanned, fmt.Errorf("record %s: undecodable locations predictions: %w", filename, err)
		}
		if len(stage) == 0 {
			return scanned, fmt.Errorf("record %s: empty stage prediction vector", filename)
		}
		if len(locations) == 0 {
			return scanned, fmt.Errorf("record %s: empty locations prediction vector", filename)
		}
		scanned++
	}
	return scanned, rows.Err()
}
