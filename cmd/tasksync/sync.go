package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/localsync/tasksync/internal/events"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle against the remote",
	Long: `Run a single pull-then-push sync cycle.

Pulls remote changes since the last sync, merges them with last-write-wins,
then pushes the staged operation queue in order.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.RemoteURL == "" {
			fatal("no remote_url configured; set it in %s or TASKSYNC_REMOTE_URL", "tasksync.yaml")
		}

		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		ch, unsubscribe := c.Bus().Subscribe()
		defer unsubscribe()

		fmt.Printf("Syncing with %s...\n", cfg.RemoteURL)
		start := time.Now()

		// Going online kicks the catch-up cycle; wait for its outcome.
		c.SetOnline(true)
		var failure string
	wait:
		for {
			select {
			case evt := <-ch:
				switch evt.Type {
				case events.TypeSyncCompleted:
					break wait
				case events.TypeSyncFailed:
					failure = evt.Error
					break wait
				case events.TypeConflictResolved:
					fmt.Printf("   Conflict on %s %s: %s copy kept\n",
						evt.EntityType, shortID(evt.EntityID), evt.Resolution)
				}
			case <-ctx.Done():
				fatal("sync timed out")
			}
		}

		if failure != "" {
			fatal("sync failed: %s", failure)
		}

		status, err := c.Status(ctx)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		if status.PendingOperations > 0 {
			fmt.Printf("   Pending: %d (of which %d failing)\n",
				status.PendingOperations, status.FailedOperations)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		ctx := context.Background()
		status, err := c.Status(ctx)
		if err != nil {
			fatal("%v", err)
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Println()
		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		if cfg.RemoteURL != "" {
			fmt.Printf("Remote: %s\n", cfg.RemoteURL)
		} else {
			fmt.Println("Remote: not configured (offline only)")
		}
		if status.LastSyncTime.IsZero() {
			fmt.Println("Last sync: never")
		} else {
			fmt.Printf("Last sync: %s\n", status.LastSyncTime.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Queue: %d pending, %d failing, %d synced awaiting prune\n",
			stats.Pending, stats.Failed, stats.Synced)
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
