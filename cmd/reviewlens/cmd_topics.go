package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/topics"
)

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Group normalized concepts into cross-review topics",
	}
	cmd.AddCommand(topicsGroupCmd(), topicsDescribeCmd(), topicsStableCmd())
	return cmd
}

func topicsGroupCmd() *cobra.Command {
	var dryRun bool
	var limit int

	cmd := &cobra.Command{
		Use:   "group",
		Short: "Propose or commit topic assignments for normalized concepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("topics group: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			result, err := newTopicService(st, logger).GroupConcepts(ctx, topics.GroupOptions{
				DryRun: dryRun,
				Limit:  limit,
			})
			if err != nil {
				return fmt.Errorf("topics group: %w", err)
			}

			if len(result.Proposals) == 0 {
				fmt.Println("No topics proposed")
				return nil
			}
			for _, p := range result.Proposals {
				fmt.Printf("  %-32s %d concepts\n", p.Label, len(p.ConceptIDs))
			}
			if dryRun {
				fmt.Printf("\nDry run: %d proposals, nothing written\n", len(result.Proposals))
			} else {
				fmt.Printf("\nAssigned %d concepts across %d topics\n", result.Assigned, len(result.TopicIDs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute proposals without writing")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum concepts to group (0 = configured default)")
	return cmd
}

func topicsDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <topic-id>",
		Short: "Generate and store a prose description for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("topics describe: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			topic, err := newTopicService(st, logger).DescribeTopic(ctx, args[0])
			if err != nil {
				return fmt.Errorf("topics describe: %w", err)
			}

			fmt.Printf("%s\n%s\n\n%s\n", topic.Label, strings.Repeat("-", len(topic.Label)), topic.Description)
			return nil
		},
	}
}

func topicsStableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stable <topic-id>",
		Short: "Freeze a topic's membership against regrouping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("topics stable: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			topic, err := newTopicService(st, logger).MarkStable(ctx, args[0])
			if err != nil {
				return fmt.Errorf("topics stable: %w", err)
			}

			fmt.Printf("Topic %q is now stable\n", topic.Label)
			return nil
		},
	}
}
