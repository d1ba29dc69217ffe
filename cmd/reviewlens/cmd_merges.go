package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/models"
)

func mergesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merges",
		Short: "Cluster near-duplicate concept labels",
	}
	cmd.AddCommand(mergesPreviewCmd(), mergesApplyCmd())
	return cmd
}

func mergesPreviewCmd() *cobra.Command {
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show candidate label merges without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerges(cmd, kind, limit, false)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "aspect", "label kind: aspect or entity")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum labels to consider (0 = configured default)")
	return cmd
}

func mergesApplyCmd() *cobra.Command {
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Persist label clusters and rewrite concept rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerges(cmd, kind, limit, true)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "aspect", "label kind: aspect or entity")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum labels to consider (0 = configured default)")
	return cmd
}

func runMerges(cmd *cobra.Command, kindArg string, limit int, apply bool) error {
	logger := newLogger()
	ctx := cmd.Context()

	kind := models.LabelKind(kindArg)
	if !kind.IsValid() {
		return fmt.Errorf("merges: kind must be one of: aspect, entity")
	}

	st, err := newStore(logger)
	if err != nil {
		return fmt.Errorf("merges: opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	resolver, err := newResolver(kind, st, logger)
	if err != nil {
		return fmt.Errorf("merges: %w", err)
	}

	var proposals []models.MergeProposal
	if apply {
		proposals, err = resolver.ApplyMerges(ctx, limit)
	} else {
		proposals, err = resolver.PreviewMerges(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("merges: %w", err)
	}

	if len(proposals) == 0 {
		fmt.Println("No merges proposed")
		return nil
	}
	verb := "Proposed"
	if apply {
		verb = "Applied"
	}
	fmt.Printf("%s %d %s merges:\n", verb, len(proposals), kind)
	for _, p := range proposals {
		fmt.Printf("  %-24s <- %s\n", p.Winner, strings.Join(p.Losers, ", "))
	}
	return nil
}
