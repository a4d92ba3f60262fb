package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"nlq_eval/internal/evaluation"
	"nlq_eval/internal/matrix"
)

func newRunCmd() *cobra.Command {
	var (
		promptSetIDs   []int64
		modelConfigIDs []int64
		baselineSQL    string
		explain        bool
	)

	cmd := &cobra.Command{
		Use:   "run <question>",
		Short: "Generate SQL for a question with every selected prompt set and model config",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				opts := evaluation.Options{
					SavedDisplay: a.cfg.Feedback.SavedDisplay,
					Sink:         a.sink,
					Logger:       a.logger.With("component", "evaluation"),
				}
				if cache := a.suggestCache(); cache != nil {
					opts.Suggestions = cache
				}
				c := evaluation.NewController(a.client, opts)
				defer c.Close()

				if err := c.Open(ctx); err != nil {
					return err
				}

				c.SetText(strings.Join(args, " "))
				if got := c.SelectPromptSets(promptSetIDs); len(got) < len(promptSetIDs) {
					fmt.Fprintf(os.Stderr, "prompt sets capped to %v (at most %d combinations)\n", got, matrix.MaxCombinations)
				}
				if got := c.SelectModelConfigs(modelConfigIDs); len(got) < len(modelConfigIDs) {
					fmt.Fprintf(os.Stderr, "model configs capped to %v (at most %d combinations)\n", got, matrix.MaxCombinations)
				}

				started, err := c.Run(ctx)
				if !started {
					return fmt.Errorf("a question, at least one prompt set and at least one model config are required")
				}
				if err != nil {
					return err
				}

				if baselineSQL != "" {
					c.SetBaselineSQL(baselineSQL)
				}

				v := c.View()
				printRun(v)

				if explain {
					for _, p := range v.Panels {
						if p.Result == nil || p.IsBaseline {
							continue
						}
						if err := c.Explain(ctx, p.Result.ID); err != nil {
							fmt.Fprintf(os.Stderr, "explain result %d: %v\n", p.Result.ID, err)
							continue
						}
						fmt.Printf("\n-- Explanation for result %d --\n%s\n", p.Result.ID, c.View().Explain.Text)
					}
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.Int64SliceVarP(&promptSetIDs, "prompt-set", "p", nil, "Prompt set ids, in selection order")
	flags.Int64SliceVarP(&modelConfigIDs, "model", "m", nil, "Model config ids, in selection order")
	flags.StringVar(&baselineSQL, "baseline-sql", "", "Reference SQL to explain differences against")
	flags.BoolVar(&explain, "explain", false, "Explain every non-baseline result against the baseline")
	return cmd
}

func printRun(v evaluation.View) {
	if v.Run.Run == nil {
		return
	}
	fmt.Printf("Run %d for NLQ %d (%s)\n", v.Run.Run.RunID, v.Run.Run.NLQID, v.Run.Duration.Round(time.Millisecond))
	if v.BaselineSQL != "" {
		fmt.Printf("Baseline SQL:\n%s\n", v.BaselineSQL)
	} else if v.BaselineErr != "" {
		fmt.Printf("Baseline SQL unavailable: %s\n", v.BaselineErr)
	}
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROMPT SET\tMODEL\tRESULT\tLATENCY\tBASELINE\tTAG")
	for _, p := range v.Panels {
		if p.Result == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t\t\n", p.Combination.PromptSet.Name, p.Combination.ModelConfig.Name)
			continue
		}
		latency := "n/a"
		if p.LatencyMs != nil {
			latency = fmt.Sprintf("%dms", *p.LatencyMs)
		}
		baseline := ""
		if p.IsBaseline {
			baseline = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			p.Combination.PromptSet.Name, p.Combination.ModelConfig.Name,
			p.Result.ID, latency, baseline, p.Result.HumanEvaluationTag)
	}
	_ = tw.Flush()

	for _, p := range v.Panels {
		if p.Result == nil {
			continue
		}
		fmt.Printf("\n-- Result %d: %s / %s --\n%s\n", p.Result.ID,
			p.Combination.PromptSet.Name, p.Combination.ModelConfig.Name, p.Result.GeneratedSQL)
	}
}
