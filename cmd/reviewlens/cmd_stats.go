package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-stage pipeline counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("stats: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: fetching statistics: %w", err)
			}

			fmt.Printf("Reviews:    %d total, %d conceptualized\n",
				stats.TotalReviews, stats.ConceptualizedReviews)
			fmt.Printf("Concepts:   %d total, %d normalized\n",
				stats.TotalConcepts, stats.NormalizedConcepts)
			fmt.Printf("Clusters:   %d aspect, %d entity\n",
				stats.AspectClusters, stats.EntityClusters)
			fmt.Printf("Topics:     %d total, %d stable\n",
				stats.Topics, stats.StableTopics)
			return nil
		},
	}
}
