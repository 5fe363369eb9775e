package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatforge/knowledge/internal/retrieval"
)

var (
	searchTenant    string
	searchKBs       []string
	searchLimit     int
	searchThreshold float32
	searchContent   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a similarity search",
	Args:  cobra.ExactArgs(1),
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

		resp, err := engine.Search(cmd.Context(), retrieval.Request{
			TenantID:         searchTenant,
			Query:            args[0],
			KnowledgeBaseIDs: searchKBs,
			Limit:            searchLimit,
			Threshold:        searchThreshold,
			IncludeContent:   searchContent,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchTenant, "tenant", "", "tenant id (required)")
	searchCmd.Flags().StringSliceVar(&searchKBs, "kb", nil, "restrict to knowledge base ids")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum similarity score")
	searchCmd.Flags().BoolVar(&searchContent, "content", false, "include chunk content in results")
	_ = searchCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(searchCmd)
}
