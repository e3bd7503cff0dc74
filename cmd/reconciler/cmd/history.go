package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"invoice-reconciliation-service/internal/quality"
	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

var historyFilter struct {
	status string
	grade  string
	limit  int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded reconciliation runs",
	Long: `History lists the runs recorded by 'reconciler reconcile', newest first,
so the grade of successive runs can be compared.

Examples:
  reconciler history
  reconciler history --grade F --limit 5
  reconciler history show 3f2c9a4e-...`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.Flags().StringVar(&historyFilter.status, "status", "", "only runs with this status: running, complete, failed")
	historyCmd.Flags().StringVar(&historyFilter.grade, "grade", "", "only runs with this grade: A, B, C, D, F")
	historyCmd.Flags().IntVarP(&historyFilter.limit, "limit", "n", 20, "maximum number of runs to list")
}

func openHistory(cmd *cobra.Command) (*store.SQLiteStore, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if settings.HistoryPath == "" {
		return nil, errors.ConfigurationError(errors.CodeConfigConflict, "history.enabled", false, nil).
			WithSuggestion("history is disabled; enable it or pass --db")
	}
	return store.NewSQLite(cmd.Context(), settings.HistoryPath, logger.GetGlobalLogger())
}

func runHistory(cmd *cobra.Command, args []string) error {
	filter, err := parseRunFilter(historyFilter.status, historyFilter.grade, historyFilter.limit)
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	printRunTable(out, runs)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printRun(cmd.OutOrStdout(), run)
	return nil
}

func parseRunFilter(status, grade string, limit int) (store.RunFilter, error) {
	filter := store.RunFilter{Limit: limit}

	switch s := store.RunStatus(strings.ToLower(status)); s {
	case "", store.RunStatusRunning, store.RunStatusComplete, store.RunStatusFailed:
		filter.Status = s
	default:
		return filter, errors.InvalidConfigurationError("status", status, "expected running, complete or failed")
	}

	switch g := quality.Grade(strings.ToUpper(grade)); g {
	case "", quality.GradeA, quality.GradeB, quality.GradeC, quality.GradeD, quality.GradeF:
		filter.Grade = g
	default:
		return filter, errors.InvalidConfigurationError("grade", grade, "expected A, B, C, D or F")
	}

	if limit < 0 {
		return filter, errors.InvalidConfigurationError("limit", limit, "cannot be negative")
	}
	return filter, nil
}

func printRunTable(w io.Writer, runs []store.Run) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Started", "Status", "Grade", "Score", "Match rate", "Difference", "Inputs"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			string(r.Status),
			string(r.Grade),
			scoreText(r),
			percentText(r),
			r.Difference,
			strings.Join(append(append([]string{}, r.InvoiceSources...), r.LedgerSources...), ", "),
		})
	}
	table.Render()
}

func printRun(w io.Writer, r *store.Run) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	rows := [][]string{
		{"Run", r.ID},
		{"Status", string(r.Status)},
		{"Started", r.StartedAt.Local().Format(time.RFC3339)},
	}
	if r.FinishedAt != nil {
		rows = append(rows, []string{"Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()})
	}
	rows = append(rows,
		[]string{"Invoices", strings.Join(r.InvoiceSources, ", ")},
		[]string{"Ledger", strings.Join(r.LedgerSources, ", ")},
	)
	if r.Error != "" {
		rows = append(rows, []string{"Error", r.Error})
	}
	if s := r.Summary; s != nil {
		rows = append(rows,
			[]string{"Grade", fmt.Sprintf("%s (%s)", s.Grade, s.Assessment)},
			[]string{"Score", scoreText(*r)},
			[]string{"Matches", strconv.Itoa(s.Matches)},
			[]string{"Discrepancies", strconv.Itoa(s.Discrepancies)},
			[]string{"Orphan invoices", strconv.Itoa(s.OrphanInvoices)},
			[]string{"Orphan ledger rows", strconv.Itoa(s.OrphanLedger)},
			[]string{"Match rate", percentText(*r)},
			[]string{"Difference", r.Difference},
		)
	}
	table.AppendBulk(rows)
	table.Render()

	if r.Summary != nil && len(r.Summary.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range r.Summary.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

func scoreText(r store.Run) string {
	if r.Status != store.RunStatusComplete {
		return "-"
	}
	return strconv.FormatFloat(r.Score, 'f', 2, 64)
}

func percentText(r store.Run) string {
	if r.Status != store.RunStatusComplete {
		return "-"
	}
	return strconv.FormatFloat(r.MatchRate*100, 'f', 1, 64) + "%"
}
