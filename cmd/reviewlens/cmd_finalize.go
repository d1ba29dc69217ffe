package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func finalizeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Stamp concepts whose aspect and entity clusters are both resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("finalize: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			n, err := newFinalizer(st, logger).FinalizeBatch(ctx, limit)
			if err != nil {
				return fmt.Errorf("finalize: %w", err)
			}

			fmt.Printf("Finalized %d concepts\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum concepts to finalize (0 = configured default)")
	return cmd
}
