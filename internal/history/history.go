package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one completed evaluation run.
type Run struct {
	ID           string
	ExerciseID   string
	ExerciseName string
	Reps         int
	StartedAt    time.Time
	EndedAt      time.Time
}

// DB wraps the local SQLite history database.
type DB struct {
	conn *sql.DB
}

// NewDB opens the history database and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory failed: %w", err)
	}

	// WAL mode for better concurrency; SQLite works best with a single
	// connection.
	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema failed: %w", err)
	}

	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		exercise_id TEXT NOT NULL,
		exercise_name TEXT NOT NULL,
		reps INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_exercise ON runs(exercise_id);
	CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertRun records a completed run. A missing id is generated.
func (db *DB) InsertRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO runs (id, exercise_id, exercise_name, reps, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.Exec(query,
		run.ID, run.ExerciseID, run.ExerciseName, run.Reps,
		run.StartedAt.Unix(), run.EndedAt.Unix())
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(`
		SELECT id, exercise_id, exercise_name, reps, started_at, ended_at
		FROM runs ORDER BY ended_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.ExerciseID, &r.ExerciseName, &r.Reps, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.EndedAt = time.Unix(ended, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AggregateStats holds aggregate statistics over all recorded runs.
type AggregateStats struct {
	TotalRuns int
	TotalReps int
	TodayRuns int
	TodayReps int
}

// GetAggregateStats returns totals across all runs plus today's slice.
func (db *DB) GetAggregateStats() (*AggregateStats, error) {
	stats := &AggregateStats{}

	err := db.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(reps), 0) FROM runs
	`).Scan(&stats.TotalRuns, &stats.TotalReps)
	if err != nil {
		return nil, fmt.Errorf("query total stats: %w", err)
	}

	today := time.Now().Format("2006-01-02")
	err = db.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(reps), 0)
		FROM runs
		WHERE DATE(ended_at, 'unixepoch', 'localtime') = ?
	`, today).Scan(&stats.TodayRuns, &stats.TodayReps)
	if err != nil {
		return nil, fmt.Errorf("query today stats: %w", err)
	}

	return stats, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
