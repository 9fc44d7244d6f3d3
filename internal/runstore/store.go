package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"trafficlens/internal/config"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/result"
	"trafficlens/internal/services"
)

const (
	runColumns       = "id, source_label, state, progress, completed_stages, error_kind, error_message, result_json, frame_count, created_at, updated_at"
	defaultListLimit = 50
	interruptedError = "server stopped before the run finished"
	// fixed width so timestamps sort lexically
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Stats summarizes stored runs by state.
type Stats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Open initializes or connects to the run database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new run record.
func (s *Store) Create(ctx context.Context, snap pipeline.Snapshot) error {
	row, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.sourceLabel, row.state, row.progress, row.stages,
		row.errorKind, row.errorMessage, row.resultJSON, row.frameCount,
		row.createdAt, row.updatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing run.
func (s *Store) Update(ctx context.Context, snap pipeline.Snapshot) error {
	row, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, progress = ?, completed_stages = ?, error_kind = ?,
            error_message = ?, result_json = ?, frame_count = ?, updated_at = ?
        WHERE id = ?`,
		row.state, row.progress, row.stages, row.errorKind,
		row.errorMessage, row.resultJSON, row.frameCount, row.updatedAt,
		row.id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s", services.ErrNotFound, snap.ID)
	}
	return nil
}

// Get fetches a run by identifier. Missing runs return an error wrapping
// services.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*pipeline.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	snap, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", services.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return snap, nil
}

// List returns the most recent runs first. A non-positive limit uses the
// default page size.
func (s *Store) List(ctx context.Context, limit int) ([]pipeline.Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Snapshot
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// Stats counts runs per state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM runs GROUP BY state`)
	if err != nil {
		return Stats{}, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, fmt.Errorf("scan run stats: %w", err)
		}
		stats.Total += count
		switch pipeline.State(state) {
		case pipeline.StateRunning, pipeline.StateIdle:
			stats.Running += count
		case pipeline.StateSucceeded:
			stats.Succeeded += count
		case pipeline.StateFailed:
			stats.Failed += count
		}
	}
	return stats, rows.Err()
}

// FailInterrupted marks runs left running by a previous process as failed.
// It returns the number of runs updated.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error_kind = ?, error_message = ?, updated_at = ?
        WHERE state IN (?, ?)`,
		string(pipeline.StateFailed), "interrupted", interruptedError, formatTime(time.Now()),
		string(pipeline.StateRunning), string(pipeline.StateIdle),
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

type runRow struct {
	id           string
	sourceLabel  string
	state        string
	progress     float64
	stages       string
	errorKind    sql.NullString
	errorMessage sql.NullString
	resultJSON   sql.NullString
	frameCount   int
	createdAt    string
	updatedAt    string
}

func encodeSnapshot(snap pipeline.Snapshot) (runRow, error) {
	row := runRow{
		id:           snap.ID,
		sourceLabel:  snap.SourceLabel,
		state:        string(snap.State),
		progress:     snap.Progress,
		stages:       pipeline.JoinStages(snap.CompletedStages),
		errorKind:    nullableString(snap.ErrorKind),
		errorMessage: nullableString(snap.ErrorMessage),
		frameCount:   snap.FrameCount,
		createdAt:    formatTime(snap.CreatedAt),
		updatedAt:    formatTime(snap.UpdatedAt),
	}
	if snap.Result != nil {
		res := *snap.Result
		if res.DetectedVehicles == nil {
			res.DetectedVehicles = []result.DetectedVehicle{}
		}
		if res.Anomalies == nil {
			res.Anomalies = []string{}
		}
		if res.Insights == nil {
			res.Insights = []string{}
		}
		data, err := json.Marshal(res)
		if err != nil {
			return runRow{}, fmt.Errorf("marshal result: %w", err)
		}
		row.resultJSON = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*pipeline.Snapshot, error) {
	var row runRow
	if err := scanner.Scan(
		&row.id,
		&row.sourceLabel,
		&row.state,
		&row.progress,
		&row.stages,
		&row.errorKind,
		&row.errorMessage,
		&row.resultJSON,
		&row.frameCount,
		&row.createdAt,
		&row.updatedAt,
	); err != nil {
		return nil, err
	}

	state, err := pipeline.ParseState(row.state)
	if err != nil {
		return nil, err
	}
	stages, err := pipeline.ParseStageList(row.stages)
	if err != nil {
		return nil, err
	}
	snap := &pipeline.Snapshot{
		ID:              row.id,
		SourceLabel:     row.sourceLabel,
		State:           state,
		CompletedStages: stages,
		Progress:        row.progress,
		FrameCount:      row.frameCount,
		ErrorKind:       row.errorKind.String,
		ErrorMessage:    row.errorMessage.String,
		CreatedAt:       parseTimeString(row.createdAt),
		UpdatedAt:       parseTimeString(row.updatedAt),
	}
	if row.resultJSON.Valid && row.resultJSON.String != "" {
		res, err := result.Parse([]byte(row.resultJSON.String))
		if err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		snap.Result = &res
	}
	return snap, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTimeString(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(timeLayout, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	return time.Time{}
}
