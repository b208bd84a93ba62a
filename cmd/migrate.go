package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truenorth/truenorth/db"
	"github.com/truenorth/truenorth/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return db.Migrate(cfg.PostgresURL())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
