// Package history persists run transcripts in a local SQLite database.
package history

import (
	"database/sql"
	"embed"
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

// Store wraps a SQLite database holding run transcripts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "octl.db")
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

// Save stores one transcript.
func (s *Store) Save(tr Transcript) error {
	_, err := s.db.Exec(`
		INSERT INTO transcripts (id, created_at, model, prompt, response, eval_count, total_duration_ns, load_duration_ns, eval_duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.CreatedAt.UTC().Format(time.RFC3339), tr.Model, tr.Prompt, tr.Response,
		tr.EvalCount, int64(tr.TotalDuration), int64(tr.LoadDuration), int64(tr.EvalDuration),
	)
	return err
}

// Get retrieves a transcript by ID.
func (s *Store) Get(id string) (Transcript, error) {
	var tr Transcript
	var createdAt string
	var total, load, eval int64
	err := s.db.QueryRow(`
		SELECT id, created_at, model, prompt, response, eval_count, total_duration_ns, load_duration_ns, eval_duration_ns
		FROM transcripts WHERE id = ?`, id,
	).Scan(&tr.ID, &createdAt, &tr.Model, &tr.Prompt, &tr.Response, &tr.EvalCount, &total, &load, &eval)
	if err == sql.ErrNoRows {
		return Transcript{}, ErrNotFound
	}
	if err != nil {
		return Transcript{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Transcript{}, fmt.Errorf("parsing created_at: %w", err)
	}
	tr.CreatedAt = t
	tr.TotalDuration = time.Duration(total)
	tr.LoadDuration = time.Duration(load)
	tr.EvalDuration = time.Duration(eval)
	return tr, nil
}

// Recent returns up to limit transcripts, most recent first. An empty model
// matches all models.
func (s *Store) Recent(model string, limit int) ([]Transcript, error) {
	query := `
		SELECT id, created_at, model, prompt, response, eval_count, total_duration_ns, load_duration_ns, eval_duration_ns
		FROM transcripts`
	args := []any{}
	if model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Transcript
	for rows.Next() {
		var tr Transcript
		var createdAt string
		var total, load, eval int64
		if err := rows.Scan(&tr.ID, &createdAt, &tr.Model, &tr.Prompt, &tr.Response, &tr.EvalCount, &total, &load, &eval); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		tr.CreatedAt = t
		tr.TotalDuration = time.Duration(total)
		tr.LoadDuration = time.Duration(load)
		tr.EvalDuration = time.Duration(eval)
		results = append(results, tr)
	}
	return results, rows.Err()
}

// Purge deletes transcripts created before the cutoff and returns how many
// were removed. A zero cutoff deletes everything.
func (s *Store) Purge(before time.Time) (int64, error) {
	var res sql.Result
	var err error
	if before.IsZero() {
		res, err = s.db.Exec(`DELETE FROM transcripts`)
	} else {
		res, err = s.db.Exec(`DELETE FROM transcripts WHERE created_at < ?`, before.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of stored transcripts.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transcripts`).Scan(&n)
	return n, err
}
