// Package cmd is the operator CLI for the knowledge retrieval engine:
// search, rebuild, stats, and health against a configured deployment.
// The serving API layer lives elsewhere; this surface is for operators
// and scripts.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chatforge/knowledge/internal/config"
	"github.com/chatforge/knowledge/internal/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "knowledge",
	Short:         "Multi-tenant knowledge retrieval engine",
	Long:          "Operator CLI for the knowledge retrieval engine: similarity search, knowledge-base reindexing, collection stats, and backend health.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (optional)")
}

// loadConfig reads configuration and builds the root logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.Log.JSON})
	return cfg, logger, nil
}
