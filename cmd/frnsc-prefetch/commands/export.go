package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ForensicRS/frnsc-prefetch/internal/logger"
	"github.com/ForensicRS/frnsc-prefetch/pkg/export"
	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch"
)

var exportDB string

var exportCmd = &cobra.Command{
	Use:   "export [file|dir]...",
	Short: "Export execution timelines into a SQLite database",
	Long: `Export execution timelines into a SQLite database.

Each recorded run time of each parsed artifact becomes one row in the
prefetch_executions table, ready to merge with other timeline sources.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && parseRoot == "" {
			return fmt.Errorf("provide .pf files, directories, or --root")
		}
		return nil
	},
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportDB, "db", "", "SQLite database path (default from config)")
	exportCmd.Flags().StringVar(&parseRoot, "root", "", "extracted image root containing C/Windows/Prefetch")
}

func runExport(cmd *cobra.Command, args []string) error {
	dbPath := exportDB
	if dbPath == "" {
		dbPath = cfg.Export.Database
	}

	records, err := collectRecords(prefetch.New(), args)
	if err != nil {
		return err
	}

	db, err := export.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.WriteRecords(records); err != nil {
		return err
	}
	count, err := db.CountExecutions()
	if err != nil {
		return err
	}
	logger.Info("timeline exported", "database", dbPath, "records", len(records), "executions", count)
	cmd.Printf("exported %d records (%d executions total) to %s\n", len(records), count, dbPath)
	return nil
}
