package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/localsync/tasksync/internal/config"
	"github.com/localsync/tasksync/internal/remote"
	"github.com/localsync/tasksync/internal/store"
	"github.com/localsync/tasksync/internal/syncer"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Offline-first task manager with background sync",
	Long: `tasksync is an offline-first task manager.

All changes are written to a local SQLite database and staged in a durable
queue; when a remote API is reachable they are pushed in order, and remote
changes are pulled and merged with last-write-wins conflict resolution.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tasksync.yaml or ~/.tasksync/tasksync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig reads configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		fatal("%v", err)
	}
	return cfg
}

// openDatabase opens the local store with schema and default categories
// in place, or exits.
func openDatabase(cfg *config.Config) *store.DB {
	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		fatal("failed to open database: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		fatal("failed to initialize schema: %v", err)
	}
	if err := db.SeedDefaultCategories(context.Background()); err != nil {
		_ = db.Close()
		fatal("failed to seed categories: %v", err)
	}
	return db
}

// engineLogger returns the logger for controller activity. Quiet unless
// --verbose is set.
func engineLogger(prefix string) *log.Logger {
	if verbose {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// newController wires a controller for one-shot CLI commands.
func newController(cfg *config.Config, db *store.DB) *syncer.Controller {
	opts := syncer.DefaultOptions()
	opts.Interval = cfg.Sync.Interval
	opts.RetentionDays = cfg.Sync.RetentionDays
	opts.MaxRetries = cfg.Sync.MaxRetries
	opts.AutoSync = false // one-shot commands never run the worker
	opts.Logger = engineLogger("[syncer] ")

	return syncer.New(db, remote.NewHTTPClient(cfg.RemoteURL), nil, opts)
}
