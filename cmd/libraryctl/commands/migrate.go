package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rongwang/library-server/internal/config"
)

// migrateCmd creates the schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := config.SetupDatabase(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "schema ready in %s\n", cfg.Database.DBName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
