package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statsTenant string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a tenant's vector collection stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		engine, cleanup, err := buildEngine(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := engine.Stats(cmd.Context(), statsTenant)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsTenant, "tenant", "", "tenant id (required)")
	_ = statsCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(statsCmd)
}
