package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/config"
	"github.com/openbms-io/bms-edge-agent/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
	Long:  "Apply or roll back the staging store's schema. Never run implicitly — only through this subcommand (§6.1).",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openMigrationDB()
		if err != nil {
			logger.Error("%v", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrator().Run(); err != nil {
			logger.Error("migration failed: %v", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied successfully")
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [n]",
	Short: "Roll back the last n migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		n := 1
		if len(args) == 1 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil || parsed <= 0 {
				logger.Error("invalid rollback count %q", args[0])
				os.Exit(1)
			}
			n = parsed
		}

		db, err := openMigrationDB()
		if err != nil {
			logger.Error("%v", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrator().Rollback(n); err != nil {
			logger.Error("rollback failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", n)
	},
}

func openMigrationDB() (*database.SQLiteDB, error) {
	appCfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return database.NewSQLiteDBFromPath(appCfg.DatabasePath)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
