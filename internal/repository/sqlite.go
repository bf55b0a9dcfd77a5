package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
	_ "modernc.org/sqlite"
)

// SQLiteRepository is a single-file SQLite-backed Repository, grounded on
// graph/store/sqlite.go's schema/pragma/table-creation approach. Intended
// for single-process, single-project-directory deployments.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) a SQLite database at path
// and migrates its schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("repository: %s: %w", pragma, err)
		}
	}

	r := &SQLiteRepository{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_state (
			project TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS phase_outputs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			phase INTEGER NOT NULL,
			output TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_phase_outputs_lookup ON phase_outputs(project, phase, id)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			project TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			type TEXT NOT NULL,
			task_id TEXT,
			message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_lookup ON logs(project, type, task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			priority TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			event TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_lookup ON events(project, timestamp)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			label TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_lookup ON checkpoints(project, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: migrating schema: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) SaveWorkflowState(ctx context.Context, project string, state workflow.WorkflowState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("repository: encoding state: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_state (project, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		project, string(blob), time.Now().UTC())
	return err
}

func (r *SQLiteRepository) LoadWorkflowState(ctx context.Context, project string) (workflow.WorkflowState, error) {
	var blob string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM workflow_state WHERE project = ?`, project).Scan(&blob)
	if err == sql.ErrNoRows {
		return workflow.WorkflowState{}, ErrNotFound
	}
	if err != nil {
		return workflow.WorkflowState{}, err
	}
	var state workflow.WorkflowState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return workflow.WorkflowState{}, fmt.Errorf("repository: decoding state: %w", err)
	}
	return state, nil
}

func (r *SQLiteRepository) AppendPhaseOutput(ctx context.Context, project string, phase int, output string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO phase_outputs (project, phase, output) VALUES (?, ?, ?)`, project, phase, output)
	return err
}

func (r *SQLiteRepository) LatestPhaseOutput(ctx context.Context, project string, phase int) (string, error) {
	var output string
	err := r.db.QueryRowContext(ctx,
		`SELECT output FROM phase_outputs WHERE project = ? AND phase = ? ORDER BY id DESC LIMIT 1`,
		project, phase).Scan(&output)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return output, err
}

func (r *SQLiteRepository) UpsertTask(ctx context.Context, project string, task workflow.Task) error {
	blob, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("repository: encoding task: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (project, task_id, task, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(project, task_id) DO UPDATE SET task = excluded.task, updated_at = excluded.updated_at`,
		project, task.ID, string(blob), time.Now().UTC())
	return err
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, project string) ([]workflow.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT task FROM tasks WHERE project = ? ORDER BY task_id`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Task
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var t workflow.Task
		if err := json.Unmarshal([]byte(blob), &t); err != nil {
			return nil, fmt.Errorf("repository: decoding task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AppendLog(ctx context.Context, project string, entry LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO logs (id, project, type, task_id, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, project, entry.Type, entry.TaskID, entry.Message, entry.CreatedAt)
	return err
}

func (r *SQLiteRepository) QueryLogs(ctx context.Context, project string, filter LogFilter) ([]LogEntry, error) {
	query := `SELECT id, type, task_id, message, created_at FROM logs WHERE project = ?`
	args := []any{project}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, filter.TaskID)
	}
	if !filter.OlderThan.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.OlderThan)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var taskID sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &taskID, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Project = project
		e.TaskID = taskID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AppendEvent(ctx context.Context, project string, ev events.Event) error {
	blob, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("repository: encoding event: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (project, priority, timestamp, event) VALUES (?, ?, ?, ?)`,
		project, string(ev.Priority), ev.Timestamp, string(blob))
	return err
}

func (r *SQLiteRepository) QueryEvents(ctx context.Context, project string, filter EventFilter) ([]events.Event, error) {
	query := `SELECT event FROM events WHERE project = ?`
	args := []any{project}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, filter.Since.Format(time.RFC3339))
	}
	query += ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(blob), &ev); err != nil {
			return nil, fmt.Errorf("repository: decoding event: %w", err)
		}
		if filter.HasMinPriority && !meetsMinPriority(ev.Priority, filter.MinPriority) {
			continue
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteEventsOlderThan(ctx context.Context, project string, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE project = ? AND timestamp < ?`, project, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SQLiteRepository) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	blob, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("repository: encoding checkpoint state: %w", err)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO checkpoints (project, label, state, created_at) VALUES (?, ?, ?, ?)`,
		cp.Project, cp.Label, string(blob), cp.CreatedAt)
	return err
}

func (r *SQLiteRepository) ListCheckpoints(ctx context.Context, project string) ([]Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT label, state, created_at FROM checkpoints WHERE project = ? ORDER BY created_at DESC`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var blob string
		if err := rows.Scan(&cp.Label, &blob, &cp.CreatedAt); err != nil {
			return nil, err
		}
		cp.Project = project
		if err := json.Unmarshal([]byte(blob), &cp.State); err != nil {
			return nil, fmt.Errorf("repository: decoding checkpoint state: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
