// Package storage wraps the analytical SQLite store holding the inference
// and feedback tables. The query engines never touch *sql.DB directly; they
// receive the Querier view so tests can substitute a seeded in-memory store.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the inference log.
type Store struct {
	db *sql.DB
}

// Querier is the read-only store surface the query engines depend on. All
// user-controlled values must be bound as parameters; only closed,
// server-defined enums may vary the query text.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the inference log database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "curator.db")
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

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
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

// Querier returns the read-only view handed to the query engines.
func (s *Store) Querier() Querier {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
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

	// Sort by filename to guarantee ascending order.
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

		// Check if already applied.
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

// AppliedMigrations returns the list of applied migration versions in ascending order.
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

// --- Write paths ---
//
// Rows are written by the upstream gateway; the query layer treats them as
// immutable once inserted.

// InsertInference appends one inference row.
func (s *Store) InsertInference(r InferenceRow) error {
	_, err := s.db.Exec(`
		INSERT INTO inference (id, function_name, variant_name, episode_id, input, output)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.Bytes(), r.FunctionName, r.VariantName, r.EpisodeID.Bytes(), r.Input, r.Output,
	)
	return err
}

// InsertBooleanFeedback appends one boolean metric observation.
func (s *Store) InsertBooleanFeedback(f BooleanFeedback) error {
	_, err := s.db.Exec(`
		INSERT INTO boolean_feedback (id, target_id, metric_name, value)
		VALUES (?, ?, ?, ?)`,
		f.ID.Bytes(), f.TargetID.Bytes(), f.MetricName, f.Value,
	)
	return err
}

// InsertFloatFeedback appends one float metric observation.
func (s *Store) InsertFloatFeedback(f FloatFeedback) error {
	_, err := s.db.Exec(`
		INSERT INTO float_feedback (id, target_id, metric_name, value)
		VALUES (?, ?, ?, ?)`,
		f.ID.Bytes(), f.TargetID.Bytes(), f.MetricName, f.Value,
	)
	return err
}

// InsertDemonstrationFeedback appends one demonstration.
func (s *Store) InsertDemonstrationFeedback(f DemonstrationFeedback) error {
	_, err := s.db.Exec(`
		INSERT INTO demonstration_feedback (id, inference_id, value)
		VALUES (?, ?, ?)`,
		f.ID.Bytes(), f.InferenceID.Bytes(), f.Value,
	)
	return err
}

// InsertCommentFeedback appends one comment.
func (s *Store) InsertCommentFeedback(f CommentFeedback) error {
	_, err := s.db.Exec(`
		INSERT INTO comment_feedback (id, target_id, value)
		VALUES (?, ?, ?)`,
		f.ID.Bytes(), f.TargetID.Bytes(), f.Value,
	)
	return err
}
