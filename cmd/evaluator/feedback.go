package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nlq_eval/internal/feedback"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

func newFeedbackCmd() *cobra.Command {
	var (
		runID    int64
		resultID int64
		tag      string
		comment  string
	)

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Tag or comment a generated result of an earlier run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag != "" && !models.IsKnownTag(tag) {
				return fmt.Errorf("unknown tag %q, expected one of: %s", tag, strings.Join(models.EvaluationTags, ", "))
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				detail, err := a.client.GetRunDetail(ctx, runID)
				if err != nil {
					return err
				}

				rs := models.RunState{RunID: detail.ID, Results: detail.Results}
				if len(detail.Results) > 0 {
					rs.NLQID = detail.Results[0].NLQID
				} else if len(detail.SelectedNLQIDs) > 0 {
					rs.NLQID = detail.SelectedNLQIDs[0]
				}

				r := feedback.NewReconciler(a.client, a.cfg.Feedback.SavedDisplay, a.logger.With("component", "feedback"))
				defer r.Close()
				r.OnSaved(func(ctx context.Context, o feedback.SaveOutcome) {
					rec := logging.NewEventRecord(logging.EventFeedbackSaved)
					if o.Err != nil {
						rec.Kind = logging.EventFeedbackFailed
						rec.Error = o.Err.Error()
					}
					rec.RunID, rec.NLQID, rec.ResultID = o.RunID, o.NLQID, o.ResultID
					rec.Tag, rec.Comment = o.Tag, o.Comment
					if err := a.sink.Enqueue(rec); err != nil {
						a.logger.Warn("Failed to record event", "error", err)
					}
				})
				r.Apply(rs, nil)

				if _, ok := r.Draft(resultID); !ok {
					return fmt.Errorf("result %d is not part of run %d", resultID, runID)
				}
				if cmd.Flags().Changed("tag") {
					r.SetTag(resultID, tag)
				}
				if cmd.Flags().Changed("comment") {
					r.SetComment(resultID, comment)
				}
				d, _ := r.Draft(resultID)

				saved, err := r.Save(ctx, resultID)
				if err != nil {
					return err
				}
				if !saved {
					return fmt.Errorf("nothing to save: set a tag or a comment")
				}

				v := r.View()
				fmt.Printf("Saved result %d: tag=%q comment=%q\n", resultID, d.Tag, d.Comment)
				if b := v.Baseline; b.Result != nil && b.Explicit {
					fmt.Printf("Baseline for NLQ %d is result %d\n", rs.NLQID, b.ID())
				}
				if v.RefreshErr != "" {
					fmt.Printf("Warning: %s\n", v.RefreshErr)
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&runID, "run", 0, "Validation run id")
	flags.Int64Var(&resultID, "result", 0, "Generated result id")
	flags.StringVar(&tag, "tag", "", "Evaluation tag: "+strings.Join(models.EvaluationTags, ", "))
	flags.StringVar(&comment, "comment", "", "Free-text comment")
	_ = cmd.MarkFlagRequired("run")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}
