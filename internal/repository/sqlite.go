package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ RunRepository = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS refresh_runs (
			id TEXT PRIMARY KEY,
			generation INTEGER NOT NULL,
			trigger_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			event_count INTEGER NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			stale INTEGER NOT NULL DEFAULT 0,
			sources TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_refresh_runs_started_at ON refresh_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) AddRun(ctx context.Context, r *Run) error {
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return fmt.Errorf("error encoding sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs
			(id, generation, trigger_kind, status, event_count, fallback, stale, sources, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, int64(r.Generation), string(r.Trigger), string(r.Status), r.EventCount,
		r.Fallback, r.Stale, string(sources),
		r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("error inserting run %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteDB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	if limit > MaxRunLimit {
		limit = MaxRunLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation, trigger_kind, status, event_count, fallback, stale, sources, started_at, finished_at
		FROM refresh_runs
		ORDER BY started_at DESC, generation DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r                 Run
			gen               int64
			trigger, status   string
			sources           sql.NullString
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &gen, &trigger, &status, &r.EventCount,
			&r.Fallback, &r.Stale, &sources, &started, &finished); err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		r.Generation = uint64(gen)
		r.Trigger = Trigger(trigger)
		r.Status = models.Status(status)
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &r.Sources); err != nil {
				return nil, fmt.Errorf("error decoding sources for run %s: %w", r.ID, err)
			}
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
