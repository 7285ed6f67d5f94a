// Package store keeps the history of solve-and-replay runs in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded pipeline execution.
type Run struct {
	ID           string
	Encoding     string
	Environment  string
	State        string
	Models       int
	BestSize     int
	TotalSeconds float64
	SolveSeconds float64
	Choices      int64
	Conflicts    int64
	CreatedAt    time.Time
}

// Summary aggregates the runs of one encoding.
type Summary struct {
	Encoding        string
	Runs            int
	Successes       int
	AvgTotalSeconds float64
	AvgSolveSeconds float64
}

// Store manages the run history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens the run database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: concurrent benchmark writers queue here.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		encoding TEXT NOT NULL,
		environment TEXT NOT NULL,
		state TEXT NOT NULL,
		models INTEGER NOT NULL DEFAULT 0,
		best_size INTEGER NOT NULL DEFAULT 0,
		total_seconds REAL NOT NULL DEFAULT 0,
		solve_seconds REAL NOT NULL DEFAULT 0,
		choices INTEGER NOT NULL DEFAULT 0,
		conflicts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_encoding ON runs(encoding);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a run. CreatedAt defaults to now.
func (s *Store) Record(r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		return errors.New("run id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, encoding, environment, state, models, best_size,
			total_seconds, solve_seconds, choices, conflicts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Encoding, r.Environment, r.State, r.Models, r.BestSize,
		r.TotalSeconds, r.SolveSeconds, r.Choices, r.Conflicts, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

const runColumns = `id, encoding, environment, state, models, best_size,
	total_seconds, solve_seconds, choices, conflicts, created_at`

// Get returns the run with the given id.
func (s *Store) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return r, nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Summaries aggregates runs per encoding, ordered by encoding name.
func (s *Store) Summaries() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT encoding,
			COUNT(*),
			SUM(CASE WHEN state = 'success' THEN 1 ELSE 0 END),
			AVG(total_seconds),
			AVG(solve_seconds)
		FROM runs
		GROUP BY encoding
		ORDER BY encoding
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Encoding, &sum.Runs, &sum.Successes,
			&sum.AvgTotalSeconds, &sum.AvgSolveSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var created int64
	if err := sc.Scan(&r.ID, &r.Encoding, &r.Environment, &r.State, &r.Models, &r.BestSize,
		&r.TotalSeconds, &r.SolveSeconds, &r.Choices, &r.Conflicts, &created); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created)
	return &r, nil
}
