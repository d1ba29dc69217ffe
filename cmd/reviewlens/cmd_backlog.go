package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func backlogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backlog <location-id>",
		Short: "Extract concepts from unprocessed reviews for one location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("backlog: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			controller := newIntakeController(st, logger)
			result, err := controller.ProcessBacklog(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("backlog: %w", err)
			}

			fmt.Printf("Processed %d reviews, inserted %d concepts\n",
				result.Processed, result.InsertedConcepts)
			if len(result.Failures) > 0 {
				fmt.Printf("\n%d reviews failed and were left for retry:\n", len(result.Failures))
				for _, f := range result.Failures {
					fmt.Printf("  %s: %s\n", f.ReviewID, f.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum reviews to process (0 = configured default)")
	return cmd
}
