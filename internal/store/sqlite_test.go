package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func sampleSummary(grade quality.Grade, score float64) *quality.QualityReport {
	return &quality.QualityReport{
		TotalInvoices:   4,
		TotalLedgerRows: 5,
		Matches:         3,
		OrphanInvoices:  1,
		MatchRate:       0.75,
		CoverageRate:    0.75,
		Score:           score,
		Grade:           grade,
		Assessment:      grade.Assessment(),
		Recommendations: []string{"Review unmatched invoices"},
	}
}

func TestNewSQLite_WALMode(t *testing.T) {
	s := newTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := NewSQLite(context.Background(), path, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := NewSQLite(ctx, path, logger.Discard())
	require.NoError(t, err)
	run, err := s1.CreateRun(ctx, []string{"inv.json"}, []string{"ledger.xlsx"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(ctx, path, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() }) //nolint:errcheck

	got, err := s2.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger.xlsx"}, got.LedgerSources)
}

func TestRunLifecycle_Complete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, []string{"a.pdf", "b.pdf"}, []string{"ledger.csv"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	err = s.CompleteRun(ctx, run.ID, Outcome{Summary: sampleSummary(quality.GradeF, 67.5), Difference: "-12.50"})
	require.NoError(t, err)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, got.InvoiceSources)
	assert.Equal(t, quality.GradeF, got.Grade)
	assert.InDelta(t, 67.5, got.Score, 1e-9)
	assert.InDelta(t, 0.75, got.MatchRate, 1e-9)
	assert.Equal(t, "-12.50", got.Difference)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.FinishedAt.Before(got.StartedAt))
	require.NotNil(t, got.Summary)
	assert.Equal(t, 3, got.Summary.Matches)
	assert.Equal(t, []string{"Review unmatched invoices"}, got.Summary.Recommendations)
}

func TestRunLifecycle_Fail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, run.ID, fmt.Errorf("ledger unreadable")))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "ledger unreadable", got.Error)
	assert.Empty(t, got.InvoiceSources)
	assert.NotNil(t, got.InvoiceSources)
	assert.Nil(t, got.Summary)
	assert.Equal(t, quality.Grade(""), got.Grade)
}

func TestRunNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := s.GetRun(ctx, "missing"); return err }},
		{"complete", func() error { return s.CompleteRun(ctx, "missing", Outcome{}) }},
		{"fail", func() error { return s.FailRun(ctx, "missing", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not found")

			re, ok := errors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CodeRunNotFound, re.Code)
			assert.Equal(t, 6, re.GetExitCode())
		})
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	grades := []quality.Grade{quality.GradeA, quality.GradeC, quality.GradeA}
	for i, g := range grades {
		run, err := s.CreateRun(ctx, []string{fmt.Sprintf("inv-%d.json", i)}, []string{"ledger.csv"})
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, run.ID, Outcome{Summary: sampleSummary(g, 90)}))
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}
	failed, err := s.CreateRun(ctx, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, failed.ID, fmt.Errorf("boom")))

	t.Run("most recent first", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 4)
		assert.Equal(t, failed.ID, runs[0].ID)
		assert.Equal(t, ids[2], runs[1].ID)
		assert.Equal(t, ids[0], runs[3].ID)
	})

	t.Run("by status", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
		require.NoError(t, err)
		assert.Len(t, runs, 3)
	})

	t.Run("by grade", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Grade: quality.GradeA})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		for _, r := range runs {
			assert.Equal(t, quality.GradeA, r.Grade)
		}
	})

	t.Run("limit", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})
}

func TestNewSQLite_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"), logger.Discard())
	require.Error(t, err)
	re, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryStorage, re.Category)
}
