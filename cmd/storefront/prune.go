package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/storefront/internal/config"
	"github.com/dukerupert/storefront/internal/database"
	"github.com/dukerupert/storefront/internal/store"
)

func newPruneCmd(load func(*cobra.Command) config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired and used sign-in links",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := load(cmd)

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			n, err := store.NewMagicLinkStore(db).DeleteStale(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("prune links: %w", err)
			}
			cmd.Printf("removed %d sign-in links\n", n)
			return nil
		},
	}
}
