package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Drain the review backlog across all locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("sweep: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			report, err := newSweeper(st, logger).Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			fmt.Printf("Swept %d locations: %d reviews processed, %d concepts inserted\n",
				report.LocationsSwept, report.ProcessedReviews, report.InsertedConcepts)
			for _, e := range report.Errors {
				fmt.Printf("  %s: %s\n", e.LocationID, e.Error)
			}
			return nil
		},
	}
}
