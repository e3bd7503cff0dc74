package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/pipeline"
	mock_pipeline "invoice-reconciliation-service/internal/pipeline/mocks"
	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleInputs() ([]models.InvoiceRecord, []models.LedgerRecord) {
	invoices := []models.InvoiceRecord{
		{Identifier: "PO-1001", NetAmount: "1000.00", Date: "2024-01-10", Supplier: "Acme"},
		{Identifier: "PO-2002", NetAmount: "300.00", Supplier: "Acme"},
	}
	ledger := []models.LedgerRecord{
		{Identifier: "PO-1001", NetAmount: "1000.00", Date: "2024-01-11", Supplier: "ACME"},
		{Identifier: "PO-2002", NetAmount: "300.00", Supplier: "ACME"},
	}
	return invoices, ledger
}

func newRunner(invoices pipeline.InvoiceLoader, ledger pipeline.LedgerLoader, recorder pipeline.RunRecorder, config *matcher.Config, options pipeline.Options) *pipeline.Runner {
	log := logger.Discard()
	if options.Now == nil {
		options.Now = func() time.Time { return fixedNow }
	}
	return pipeline.NewRunner(invoices, ledger, recorder, reconciler.New(config, nil, log), options, log)
}

var request = pipeline.Request{
	InvoicePaths: []string{"/data/invoices/batch.json"},
	LedgerPaths:  []string{"/data/ledger/january.xlsx", "/data/ledger/february.csv"},
}

func TestRunner_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	invoices, ledger := sampleInputs()
	loadErr := errors.FileError(errors.CodeFileNotFound, "february.csv", nil)

	tests := []struct {
		name       string
		setup      func(inv *mock_pipeline.MockInvoiceLoader, led *mock_pipeline.MockLedgerLoader, rec *mock_pipeline.MockRunRecorder)
		wantErr    error
		wantRunID  string
		wantGrade  quality.Grade
		wantMatch  int
		checkError func(t *testing.T, err error)
	}{
		{
			name: "successful run is recorded",
			setup: func(inv *mock_pipeline.MockInvoiceLoader, led *mock_pipeline.MockLedgerLoader, rec *mock_pipeline.MockRunRecorder) {
				gomock.InOrder(
					rec.EXPECT().CreateRun(gomock.Any(), []string{"batch.json"}, []string{"january.xlsx", "february.csv"}).
						Return(&store.Run{ID: "run-1"}, nil),
					inv.EXPECT().LoadInvoices(gomock.Any(), request.InvoicePaths).Return(invoices, []*parsers.ParseStats{{File: "batch.json"}}, nil),
					led.EXPECT().LoadLedger(gomock.Any(), request.LedgerPaths).Return(ledger, nil, nil),
					rec.EXPECT().CompleteRun(gomock.Any(), "run-1", gomock.Any()).
						DoAndReturn(func(_ context.Context, _ string, outcome store.Outcome) error {
							assert.Equal(t, quality.GradeA, outcome.Summary.Grade)
							assert.Equal(t, "0.00", outcome.Difference)
							return nil
						}),
				)
			},
			wantRunID: "run-1",
			wantGrade: quality.GradeA,
			wantMatch: 2,
		},
		{
			name: "ledger failure marks the run failed",
			setup: func(inv *mock_pipeline.MockInvoiceLoader, led *mock_pipeline.MockLedgerLoader, rec *mock_pipeline.MockRunRecorder) {
				rec.EXPECT().CreateRun(gomock.Any(), gomock.Any(), gomock.Any()).Return(&store.Run{ID: "run-2"}, nil)
				inv.EXPECT().LoadInvoices(gomock.Any(), gomock.Any()).Return(invoices, nil, nil)
				led.EXPECT().LoadLedger(gomock.Any(), gomock.Any()).Return(nil, nil, loadErr)
				rec.EXPECT().FailRun(gomock.Any(), "run-2", loadErr).Return(nil)
			},
			wantErr: loadErr,
		},
		{
			name: "invoice failure skips the ledger",
			setup: func(inv *mock_pipeline.MockInvoiceLoader, led *mock_pipeline.MockLedgerLoader, rec *mock_pipeline.MockRunRecorder) {
				rec.EXPECT().CreateRun(gomock.Any(), gomock.Any(), gomock.Any()).Return(&store.Run{ID: "run-3"}, nil)
				inv.EXPECT().LoadInvoices(gomock.Any(), gomock.Any()).Return(nil, nil, loadErr)
				rec.EXPECT().FailRun(gomock.Any(), "run-3", loadErr).Return(fmt.Errorf("database locked"))
			},
			wantErr: loadErr,
		},
		{
			name: "history failure does not stop the run",
			setup: func(inv *mock_pipeline.MockInvoiceLoader, led *mock_pipeline.MockLedgerLoader, rec *mock_pipeline.MockRunRecorder) {
				rec.EXPECT().CreateRun(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("disk full"))
				inv.EXPECT().LoadInvoices(gomock.Any(), gomock.Any()).Return(invoices, nil, nil)
				led.EXPECT().LoadLedger(gomock.Any(), gomock.Any()).Return(ledger, nil, nil)
			},
			wantGrade: quality.GradeA,
			wantMatch: 2,
		},
		{
			name: "outcome write failure is not fatal",
			setup: func(inv *mock_pipeline.MockInvoiceLoader, led *mock_pipeline.MockLedgerLoader, rec *mock_pipeline.MockRunRecorder) {
				rec.EXPECT().CreateRun(gomock.Any(), gomock.Any(), gomock.Any()).Return(&store.Run{ID: "run-5"}, nil)
				inv.EXPECT().LoadInvoices(gomock.Any(), gomock.Any()).Return(invoices, nil, nil)
				led.EXPECT().LoadLedger(gomock.Any(), gomock.Any()).Return(ledger[:1], nil, nil)
				rec.EXPECT().CompleteRun(gomock.Any(), "run-5", gomock.Any()).Return(fmt.Errorf("database locked"))
			},
			wantRunID: "run-5",
			wantGrade: quality.GradeF,
			wantMatch: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := mock_pipeline.NewMockInvoiceLoader(ctrl)
			led := mock_pipeline.NewMockLedgerLoader(ctrl)
			rec := mock_pipeline.NewMockRunRecorder(ctrl)
			tt.setup(inv, led, rec)

			out, err := newRunner(inv, led, rec, matcher.DefaultConfig(), pipeline.Options{}).Run(context.Background(), request)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, out)
				return
			}

			require.NoError(t, err)
			if tt.wantRunID != "" {
				assert.Equal(t, tt.wantRunID, out.RunID)
			} else {
				_, parseErr := uuid.Parse(out.RunID)
				assert.NoError(t, parseErr, "expected a generated run id")
			}
			assert.Equal(t, out.RunID, out.Report.Metadata.RunID)
			assert.Equal(t, fixedNow, out.Report.Metadata.GeneratedAt)
			assert.Equal(t, []string{"january.xlsx", "february.csv"}, out.Report.Metadata.LedgerSources)
			assert.Equal(t, tt.wantGrade, out.Quality.Grade)
			assert.Len(t, out.Result.Matches, tt.wantMatch)
			assert.Same(t, out.Quality, out.Report.Quality)
		})
	}
}

func TestRunner_ProgressAndWeights(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	invoices, ledger := sampleInputs()
	inv := mock_pipeline.NewMockInvoiceLoader(ctrl)
	led := mock_pipeline.NewMockLedgerLoader(ctrl)
	inv.EXPECT().LoadInvoices(gomock.Any(), gomock.Any()).Return(invoices, nil, nil)
	led.EXPECT().LoadLedger(gomock.Any(), gomock.Any()).Return(ledger[:1], nil, nil)

	var steps []logger.ProgressStats
	weights := quality.Weights{MatchRate: 0, Coverage: 0, Confidence: 1}
	runner := newRunner(inv, led, nil, matcher.DefaultConfig(), pipeline.Options{
		Weights:    &weights,
		OnProgress: func(s logger.ProgressStats) { steps = append(steps, s) },
	})

	out, err := runner.Run(context.Background(), request)
	require.NoError(t, err)

	require.Len(t, steps, 4, "no record step without a recorder")
	assert.Equal(t, "load invoices", steps[0].Current)
	assert.Equal(t, "summarize", steps[3].Current)
	assert.InDelta(t, 100.0, steps[3].Percentage, 1e-9)

	// Only confidence counts, and the one match is exact.
	assert.InDelta(t, 100.0, out.Quality.Score, 1e-9)
	assert.Equal(t, quality.GradeA, out.Quality.Grade)
}

func TestRunner_CancelledBeforeLoading(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := mock_pipeline.NewMockInvoiceLoader(ctrl)
	led := mock_pipeline.NewMockLedgerLoader(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(inv, led, nil, matcher.DefaultConfig(), pipeline.Options{}).Run(ctx, request)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_InvalidConfigurationFailsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	invoices, ledger := sampleInputs()
	inv := mock_pipeline.NewMockInvoiceLoader(ctrl)
	led := mock_pipeline.NewMockLedgerLoader(ctrl)
	rec := mock_pipeline.NewMockRunRecorder(ctrl)

	rec.EXPECT().CreateRun(gomock.Any(), gomock.Any(), gomock.Any()).Return(&store.Run{ID: "run-9"}, nil)
	inv.EXPECT().LoadInvoices(gomock.Any(), gomock.Any()).Return(invoices, nil, nil)
	led.EXPECT().LoadLedger(gomock.Any(), gomock.Any()).Return(ledger, nil, nil)
	rec.EXPECT().FailRun(gomock.Any(), "run-9", gomock.Any()).Return(nil)

	config := matcher.DefaultConfig()
	config.ExactTolerancePct = -1

	_, err := newRunner(inv, led, rec, config, pipeline.Options{}).Run(context.Background(), request)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestRunner_RequiresBothSides(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := newRunner(mock_pipeline.NewMockInvoiceLoader(ctrl), mock_pipeline.NewMockLedgerLoader(ctrl), nil, matcher.DefaultConfig(), pipeline.Options{})

	_, err := runner.Run(context.Background(), pipeline.Request{InvoicePaths: []string{"a.json"}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}
