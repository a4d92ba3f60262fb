package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"nlq_eval/internal/analytics"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		promptSetID   int64
		modelConfigID int64
		connectionID  int64
		sql           string
		chartType     string
		xColumn       string
		yColumns      []string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "analyze [question]",
		Short: "Generate SQL for a question, run it and pick chart axes for the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" && strings.TrimSpace(sql) == "" {
				return fmt.Errorf("a question or --sql is required")
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				opts := analytics.Options{
					PromptSetFilter:     a.cfg.Analytics.PromptSetFilter,
					PreferredConnection: a.cfg.Analytics.PreferredConnection,
				}
				if a.executor != nil {
					opts.Executor = a.executor
				}
				s := analytics.NewSession(a.client, opts, a.logger.With("component", "analytics"))

				if err := s.Open(ctx); err != nil {
					return err
				}
				if promptSetID != 0 && !s.SelectPromptSet(promptSetID) {
					return fmt.Errorf("prompt set %d is not available", promptSetID)
				}
				if modelConfigID != 0 && !s.SelectModelConfig(modelConfigID) {
					return fmt.Errorf("model config %d is not available", modelConfigID)
				}
				if connectionID != 0 && !s.SelectConnection(connectionID) {
					return fmt.Errorf("connection %d is not available", connectionID)
				}

				start := time.Now()
				var runErr error
				if strings.TrimSpace(sql) != "" {
					s.SetSQL(sql)
					_, runErr = s.Rerun(ctx)
				} else {
					var started bool
					started, runErr = s.Run(ctx, text)
					if !started {
						return fmt.Errorf("no prompt set or model config available")
					}
				}

				if xColumn != "" {
					s.SetX(xColumn)
				}
				if len(yColumns) > 0 {
					s.SetY(yColumns)
				}
				if chartType != "" {
					s.SetChartType(chartType)
				}

				st := s.State()
				recordQuery(a, st, time.Since(start), runErr)
				printAnalysis(st, limit)
				return runErr
			})
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&promptSetID, "prompt-set", 0, "Prompt set id (default: first matching prompt set)")
	flags.Int64Var(&modelConfigID, "model", 0, "Model config id (default: first model config)")
	flags.Int64Var(&connectionID, "connection", 0, "Connection id (default: the preferred connection)")
	flags.StringVar(&sql, "sql", "", "Run this SQL instead of generating it")
	flags.StringVar(&chartType, "chart-type", "", "Override the chart type")
	flags.StringVar(&xColumn, "x", "", "Override the x column")
	flags.StringSliceVar(&yColumns, "y", nil, "Override the y columns")
	flags.IntVar(&limit, "limit", 20, "Rows to print, 0 prints all")
	return cmd
}

func recordQuery(a *app, st analytics.State, took time.Duration, err error) {
	rec := logging.NewEventRecord(logging.EventAnalyticsQuery)
	rec.NLQText = st.NLQ
	rec.SQL = st.SQL
	rec.ChartType = st.Chart.Type
	rec.RowCount = len(st.Table.Rows)
	rec.DurationMs = took.Milliseconds()
	if err != nil {
		rec.Error = err.Error()
	}
	if err := a.sink.Enqueue(rec); err != nil {
		a.logger.Warn("Failed to record event", "error", err)
	}
}

func printAnalysis(st analytics.State, limit int) {
	if st.SQL != "" {
		fmt.Printf("SQL:\n%s\n\n", st.SQL)
	}
	if st.Err != "" {
		fmt.Printf("Error: %s\n", st.Err)
		return
	}
	if len(st.Table.Columns) == 0 {
		fmt.Println("No results.")
		return
	}

	fmt.Printf("Chart: %s  x=%s  y=%s\n\n", st.Chart.Type, st.Chart.X, strings.Join(st.Chart.Y, ","))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(st.Table.Columns, "\t"))
	for i, row := range st.Table.Rows {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintln(tw, formatRow(st.Table.Columns, row))
	}
	_ = tw.Flush()
	if limit > 0 && len(st.Table.Rows) > limit {
		fmt.Printf("... %d more rows\n", len(st.Table.Rows)-limit)
	}
}

func formatRow(columns []string, row models.Row) string {
	cells := make([]string, len(columns))
	for i, col := range columns {
		if v := row[col]; v != nil {
			cells[i] = fmt.Sprint(v)
		} else {
			cells[i] = "NULL"
		}
	}
	return strings.Join(cells, "\t")
}
