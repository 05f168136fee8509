package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localsync/tasksync/internal/export"
)

var importDryRun bool

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export all records to a JSONL snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()

		result, err := export.Export(context.Background(), db, args[0])
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Exported %d tasks and %d categories to %s\n",
			result.Tasks, result.Categories, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import records from a JSONL snapshot",
	Long: `Import records from a JSONL snapshot.

Imported records go through the normal mutation path: they are validated,
written locally, and staged for push on the next sync cycle.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		result, err := export.Import(context.Background(), c, args[0], export.ImportOptions{
			DryRun: importDryRun,
		})
		if err != nil {
			fatal("%v", err)
		}

		verb := "Imported"
		if importDryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %d new and %d updated records from %s\n",
			verb, result.Created, result.Updated, args[0])
		for _, msg := range result.Errors {
			fmt.Printf("   Skipped: %s\n", msg)
		}
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate without applying")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
