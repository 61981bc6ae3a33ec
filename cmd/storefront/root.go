package main

import (
	"github.com/spf13/cobra"

	"github.com/dukerupert/storefront/internal/config"
)

// NewRootCmd builds the storefront CLI. getenv supplies STOREFRONT_*
// settings; flags given on the command line override them.
func NewRootCmd(getenv func(string) string) *cobra.Command {
	var (
		dbPath    string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront identity service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides STOREFRONT_DB_PATH)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides STOREFRONT_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json (overrides STOREFRONT_LOG_FORMAT)")

	load := func(c *cobra.Command) config.Config {
		cfg := config.Load(getenv)
		if c.Flags().Changed("db") {
			cfg.DBPath = dbPath
		}
		if c.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if c.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		return cfg
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newPruneCmd(load))
	return cmd
}
