package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/phonebill/runcfg/internal/runner"
	"github.com/phonebill/runcfg/pkg/api"
	_ "modernc.org/sqlite"
)

// TaskRecord is one row of run history.
type TaskRecord struct {
	ID        string
	RunID     string
	Service   string
	Task      string
	Status    api.RunStatus
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// Store is a SQLite-backed history of task executions.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// NewStore opens (creating if needed) the history database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer, sequential runs
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts rec, assigning an ID when it has none.
func (s *Store) Record(ctx context.Context, rec TaskRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, run_id, service, task, status, exit_code, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Service, rec.Task, string(rec.Status), rec.ExitCode,
		rec.StartedAt.UnixNano(), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}
	return nil
}

// RecordExecution stores a finished runner execution.
func (s *Store) RecordExecution(ctx context.Context, e runner.Execution) error {
	return s.Record(ctx, TaskRecord{
		RunID:     e.RunID,
		Service:   e.Service,
		Task:      e.Task,
		Status:    e.Status,
		ExitCode:  e.ExitCode,
		StartedAt: e.StartedAt,
		Duration:  e.Duration,
	})
}

// Recent returns up to limit records, newest first. An empty service
// matches every service.
func (s *Store) Recent(ctx context.Context, service string, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, service, task, status, exit_code, started_at, duration_ms
		 FROM task_runs
		 WHERE ? = '' OR service = ?
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`, service, service, limit)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			rec      TaskRecord
			status   string
			started  int64
			duration int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Service, &rec.Task, &status, &rec.ExitCode, &started, &duration); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		rec.Status = api.RunStatus(status)
		rec.StartedAt = time.Unix(0, started)
		rec.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ runner.Recorder = (*Store)(nil)
