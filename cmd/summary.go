package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/loc-stats/internal/render"
	"github.com/naka-gawa/loc-stats/internal/usecase"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Prints the per-window totals from the cache without contacting GitHub",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		c, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		result := usecase.Aggregate(c, time.Now())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			// Marshal the results into a pretty-printed JSON string.
			jsonData, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal results to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		}
		render.Summary(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().Bool("json", false, "Print the totals as JSON")
}
