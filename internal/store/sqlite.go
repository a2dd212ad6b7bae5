package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"extcode/internal/core"
)

// timeLayout keeps a fixed-width fraction so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writes from parallel evaluations are serialized through one connection.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			config_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			config_json TEXT NOT NULL,
			summary_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			component TEXT NOT NULL,
			protocol TEXT NOT NULL,
			command_json TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			spawn_failed INTEGER NOT NULL,
			classification TEXT NOT NULL,
			message TEXT,
			output_tail TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_run_component ON invocations(run_id, component);`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run core.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, config_path, started_at, status, config_json)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID,
		run.ConfigRef,
		run.StartedAt.UTC().Format(timeLayout),
		run.Status,
		run.Config,
	)
	return err
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status string, summaryJSON string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, summary_json = ?, finished_at = ?
		WHERE run_id = ?`,
		status,
		summaryJSON,
		time.Now().UTC().Format(timeLayout),
		runID,
	)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// RecordInvocation stores one classified external-code execution.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, rec core.InvocationRecord) error {
	if rec.ID == "" {
		rec.ID = core.NewInvocationID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (id, run_id, component, protocol, command_json, exit_code, elapsed_ms, timed_out, spawn_failed, classification, message, output_tail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.RunID,
		rec.Component,
		rec.Protocol,
		rec.CommandJSON,
		rec.ExitCode,
		rec.ElapsedMs,
		rec.TimedOut,
		rec.SpawnFailed,
		rec.Classification,
		rec.Message,
		rec.OutputTail,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) ListInvocations(ctx context.Context, runID string) ([]core.InvocationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, component, protocol, command_json, exit_code, elapsed_ms, timed_out, spawn_failed,
		       classification, message, output_tail, started_at, finished_at
		FROM invocations
		WHERE run_id = ?
		ORDER BY started_at ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.InvocationRecord
	for rows.Next() {
		var (
			rec        core.InvocationRecord
			message    sql.NullString
			outputTail sql.NullString
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Component,
			&rec.Protocol,
			&rec.CommandJSON,
			&rec.ExitCode,
			&rec.ElapsedMs,
			&rec.TimedOut,
			&rec.SpawnFailed,
			&rec.Classification,
			&message,
			&outputTail,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, err
		}
		rec.RunID = runID
		rec.Message = message.String
		rec.OutputTail = outputTail.String
		rec.StartedAt, _ = time.Parse(timeLayout, startedAt)
		rec.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) (core.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, started_at, finished_at
		FROM runs
		WHERE run_id = ?`,
		runID,
	)

	var (
		status     string
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&status, &startedAt, &finishedAt); err != nil {
		return core.RunSummary{}, err
	}

	var invocations, failures int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN classification != 'success' THEN 1 ELSE 0 END), 0)
		FROM invocations
		WHERE run_id = ?`,
		runID,
	).Scan(&invocations, &failures); err != nil {
		return core.RunSummary{}, err
	}

	started, _ := time.Parse(timeLayout, startedAt)
	finished := time.Time{}
	if finishedAt.Valid {
		finished, _ = time.Parse(timeLayout, finishedAt.String)
	}

	return core.RunSummary{
		RunID:       runID,
		Status:      status,
		Invocations: invocations,
		Failures:    failures,
		Started:     started,
		Finished:    finished,
	}, nil
}
