package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nlq_eval/internal/suggest"
)

func newSuggestCmd() *cobra.Command {
	var invalidate bool

	cmd := &cobra.Command{
		Use:   "suggest <partial question>",
		Short: "Suggest stored questions matching partial text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				src := a.suggestSource()

				if invalidate {
					cached, ok := src.(*suggest.CachedSource)
					if !ok {
						return fmt.Errorf("suggestion cache requires REDIS_ENABLED")
					}
					if err := cached.Invalidate(ctx); err != nil {
						return err
					}
					fmt.Println("Suggestion cache cleared.")
					if len(args) == 0 {
						return nil
					}
				}

				text := strings.Join(args, " ")
				if strings.TrimSpace(text) == "" {
					return fmt.Errorf("partial question text is required")
				}

				d := suggest.NewDebouncer(src, a.cfg.Suggest.QuietPeriod, a.logger.With("component", "suggest"))
				defer d.Close()
				d.OnInput(text)

				ticker := time.NewTicker(25 * time.Millisecond)
				defer ticker.Stop()
				for d.Pending() {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-ticker.C:
					}
				}

				for _, s := range d.Suggestions() {
					fmt.Println(s)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&invalidate, "invalidate", false, "Clear cached suggestions first")
	return cmd
}
