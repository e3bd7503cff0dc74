package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

const defaultListLimit = 20

// SQLiteStore implements Store using modernc.org/sqlite
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens the database at path, creating its directory, and applies
// the schema. ":memory:" is accepted for tests.
func NewSQLite(ctx context.Context, path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StorageError(errors.CodeStorageUnavailable, "open", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "open", err)
	}
	// One connection keeps ":memory:" databases alive across queries.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.StorageError(errors.CodeStorageUnavailable, "open", err).
				WithContext("pragma", pragma)
		}
	}

	s := &SQLiteStore{db: db, logger: log.WithComponent("store")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.WithField("path", path).Debug("Run history opened")
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'running',
	invoice_sources TEXT NOT NULL,
	ledger_sources  TEXT NOT NULL,
	grade           TEXT NOT NULL DEFAULT '',
	score           REAL NOT NULL DEFAULT 0,
	match_rate      REAL NOT NULL DEFAULT 0,
	difference      TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	summary         TEXT,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.StorageError(errors.CodeStorageUnavailable, "migrate", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun records a run in the running state
func (s *SQLiteStore) CreateRun(ctx context.Context, invoiceSources, ledgerSources []string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	invoicesJSON, err := json.Marshal(nonNil(invoiceSources))
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "create run", err)
	}
	ledgerJSON, err := json.Marshal(nonNil(ledgerSources))
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "create run", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, invoice_sources, ledger_sources, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(RunStatusRunning), string(invoicesJSON), string(ledgerJSON), now,
	)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "create run", err)
	}

	s.logger.WithField(logger.FieldRunID, id).Debug("Run recorded")
	return &Run{
		ID:             id,
		Status:         RunStatusRunning,
		InvoiceSources: nonNil(invoiceSources),
		LedgerSources:  nonNil(ledgerSources),
		StartedAt:      now,
	}, nil
}

// CompleteRun stores the quality summary of a finished run
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, outcome Outcome) error {
	var (
		summaryJSON []byte
		grade       string
		score       float64
		matchRate   float64
	)
	if outcome.Summary != nil {
		var err error
		summaryJSON, err = json.Marshal(outcome.Summary)
		if err != nil {
			return errors.StorageError(errors.CodeStorageQuery, "complete run", err)
		}
		grade = string(outcome.Summary.Grade)
		score = outcome.Summary.Score
		matchRate = outcome.Summary.MatchRate
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, grade = ?, score = ?, match_rate = ?, difference = ?, summary = ?, finished_at = ?
		 WHERE id = ?`,
		string(RunStatusComplete), grade, score, matchRate, outcome.Difference,
		nullableText(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageQuery, "complete run", err)
	}
	return checkRowsAffected(res, runID)
}

// FailRun marks a run as failed with the error text
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(RunStatusFailed), message, time.Now().UTC(), runID,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageQuery, "fail run", err)
	}
	return checkRowsAffected(res, runID)
}

const runColumns = `id, status, invoice_sources, ledger_sources, grade, score, match_rate, difference, error, summary, started_at, finished_at`

// GetRun returns one run with its full summary
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, notFound(runID)
	}
	return run, err
}

// ListRuns returns the most recent runs first
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Grade != "" {
		query += ` AND grade = ?`
		args = append(args, string(filter.Grade))
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "list runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "list runs", err)
	}
	return runs, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var (
		r             Run
		status, grade string
		invoicesJSON  string
		ledgerJSON    string
		summaryJSON   sql.NullString
		finishedAt    sql.NullTime
	)

	err := row.Scan(&r.ID, &status, &invoicesJSON, &ledgerJSON, &grade, &r.Score, &r.MatchRate,
		&r.Difference, &r.Error, &summaryJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "scan run", err)
	}

	r.Status = RunStatus(status)
	r.Grade = quality.Grade(grade)
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}

	if err := json.Unmarshal([]byte(invoicesJSON), &r.InvoiceSources); err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "decode invoice sources", err)
	}
	if err := json.Unmarshal([]byte(ledgerJSON), &r.LedgerSources); err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "decode ledger sources", err)
	}
	if summaryJSON.Valid {
		r.Summary = &quality.QualityReport{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, errors.StorageError(errors.CodeStorageQuery, "decode summary", err)
		}
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(errors.CodeStorageQuery, "rows affected", err)
	}
	if n == 0 {
		return notFound(runID)
	}
	return nil
}

func notFound(runID string) error {
	return errors.New(errors.CategoryStorage, errors.CodeRunNotFound, fmt.Sprintf("run not found: %s", runID)).
		WithContext("run_id", runID).
		WithSuggestion("list recorded runs with 'reconciler history'")
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
