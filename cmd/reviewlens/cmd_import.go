package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/models"
)

func importCmd() *cobra.Command {
	var locationID string

	cmd := &cobra.Command{
		Use:   "import <reviews.json>",
		Short: "Load reviews from a JSON file into the store",
		Long:  "Reads a JSON array of review objects and inserts them. Reviews without an id get a generated one; --location overrides the location_id of every review in the file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("import: reading %s: %w", args[0], err)
			}

			var reviews []models.Review
			if err := json.Unmarshal(data, &reviews); err != nil {
				return fmt.Errorf("import: parsing %s: %w", args[0], err)
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("import: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			imported := 0
			for _, r := range reviews {
				if r.ID == "" {
					r.ID = uuid.New().String()
				}
				if locationID != "" {
					r.LocationID = locationID
				}
				if r.LocationID == "" {
					return fmt.Errorf("import: review %s has no location_id; set one in the file or pass --location", r.ID)
				}
				if r.CreatedAt.IsZero() {
					r.CreatedAt = time.Now().UTC()
				}
				if err := st.InsertReview(ctx, r); err != nil {
					return fmt.Errorf("import: inserting review %s: %w", r.ID, err)
				}
				imported++
			}

			fmt.Printf("Imported %d reviews\n", imported)
			return nil
		},
	}

	cmd.Flags().StringVar(&locationID, "location", "", "override location_id for every imported review")
	return cmd
}
