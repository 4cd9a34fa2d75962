package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ambigdb/ambigdb/internal/model"
)

// Store is the run ledger backed by SQLite. It persists validation runs, the
// repair statements each run executed, and free-form settings.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new ledger store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "ambigdb.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate ledger database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the ledger database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// runRow maps 1:1 to the runs table. The binding is stored as JSON text.
type runRow struct {
	ID            string    `db:"id"`
	DBID          string    `db:"db_id"`
	Driver        string    `db:"driver"`
	Configuration string    `db:"configuration"`
	Accepted      bool      `db:"accepted"`
	FailureKind   string    `db:"failure_kind"`
	FailureRole   string    `db:"failure_role"`
	NextAction    string    `db:"next_action"`
	Error         string    `db:"error"`
	BindingJSON   string    `db:"binding_json"`
	AttemptIndex  int       `db:"attempt_index"`
	AttemptBudget int       `db:"attempt_budget"`
	StartedAt     time.Time `db:"started_at"`
	FinishedAt    time.Time `db:"finished_at"`
}

func runRowFromModel(run *model.Run) runRow {
	return runRow{
		ID:            run.ID,
		DBID:          run.DBID,
		Driver:        run.Driver,
		Configuration: string(run.Configuration),
		Accepted:      run.Accepted,
		FailureKind:   run.FailureKind,
		FailureRole:   run.FailureRole,
		NextAction:    run.NextAction,
		Error:         run.Error,
		BindingJSON:   string(run.Binding),
		AttemptIndex:  run.AttemptIndex,
		AttemptBudget: run.AttemptBudget,
		StartedAt:     run.StartedAt.UTC(),
		FinishedAt:    run.FinishedAt.UTC(),
	}
}

func (r runRow) toModel() model.Run {
	run := model.Run{
		ID:            r.ID,
		DBID:          r.DBID,
		Driver:        r.Driver,
		Configuration: model.Configuration(r.Configuration),
		Accepted:      r.Accepted,
		FailureKind:   r.FailureKind,
		FailureRole:   r.FailureRole,
		NextAction:    r.NextAction,
		Error:         r.Error,
		AttemptIndex:  r.AttemptIndex,
		AttemptBudget: r.AttemptBudget,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.BindingJSON != "" {
		run.Binding = []byte(r.BindingJSON)
	}
	return run
}

// CreateRun inserts a run together with its repair statements.
func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO runs
		(id, db_id, driver, configuration, accepted, failure_kind, failure_role, next_action, error,
		 binding_json, attempt_index, attempt_budget, started_at, finished_at)
		VALUES
		(:id, :db_id, :driver, :configuration, :accepted, :failure_kind, :failure_role, :next_action, :error,
		 :binding_json, :attempt_index, :attempt_budget, :started_at, :finished_at)`

	if _, err := tx.NamedExecContext(ctx, q, runRowFromModel(run)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, stmt := range run.Statements {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO repair_statements (run_id, seq, statement) VALUES (?, ?, ?)",
			run.ID, i+1, stmt)
		if err != nil {
			return fmt.Errorf("insert repair statement %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// GetRun returns a run by ID with its repair statements.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var row runRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	run := row.toModel()

	stmts, err := s.ListStatements(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Statements = stmts
	return &run, nil
}

// ListRuns returns runs matching filter, newest first. Statements are not
// loaded; use GetRun or ListStatements for those.
func (s *Store) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.DBID != "" {
		where = append(where, "db_id = ?")
		args = append(args, filter.DBID)
	}
	if filter.Configuration != "" {
		where = append(where, "configuration = ?")
		args = append(args, string(filter.Configuration))
	}
	if filter.Accepted != nil {
		where = append(where, "accepted = ?")
		args = append(args, *filter.Accepted)
	}

	q := "SELECT * FROM runs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			q += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]model.Run, len(rows))
	for i, r := range rows {
		runs[i] = r.toModel()
	}
	return runs, nil
}

// ListStatements returns the repair statements of a run in execution order.
func (s *Store) ListStatements(ctx context.Context, runID string) ([]string, error) {
	var stmts []string
	err := s.db.SelectContext(ctx, &stmts,
		"SELECT statement FROM repair_statements WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("list repair statements: %w", err)
	}
	return stmts, nil
}

// DeleteRun removes a run and its statements.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
