package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/localsync/tasksync/internal/config"
	"github.com/localsync/tasksync/internal/dashboard"
	"github.com/localsync/tasksync/internal/remote"
	"github.com/localsync/tasksync/internal/syncer"
)

// probeInterval is how often the daemon checks remote reachability.
const probeInterval = 10 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the sync engine in the foreground.

The daemon probes the remote API, flips between online and offline as
reachability changes, and runs periodic sync cycles while online. With
dashboard.enabled it also serves live sync events over WebSocket.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.RemoteURL == "" {
			fatal("no remote_url configured; the daemon needs a remote to sync against")
		}

		logger := daemonLogger(cfg)
		db := openDatabase(cfg)
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The persisted preference wins over the config file so 'tasksync'
		// toggles survive restarts.
		autoSync, err := db.AutoSyncEnabled(ctx)
		if err != nil {
			fatal("%v", err)
		}

		opts := syncer.DefaultOptions()
		opts.Interval = cfg.Sync.Interval
		opts.RetentionDays = cfg.Sync.RetentionDays
		opts.MaxRetries = cfg.Sync.MaxRetries
		opts.AutoSync = autoSync && cfg.Sync.Auto
		opts.Logger = logger

		client := remote.NewHTTPClient(cfg.RemoteURL)
		controller := syncer.New(db, client, nil, opts)
		defer controller.Close()

		var dash *dashboard.Server
		if cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(controller, &dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logger,
			})
			if err := dash.Start(); err != nil {
				fatal("%v", err)
			}
			defer func() { _ = dash.Stop() }()
			fmt.Printf("Dashboard: http://localhost:%d\n", cfg.Dashboard.Port)
		}

		// Reload the config file without a restart; only sync tuning is
		// applied live, transport and storage changes need a restart.
		loader := config.NewLoader(cfgFile)
		if _, err := loader.Load(); err == nil {
			loader.Watch(func(fresh *config.Config) {
				logger.Printf("Config reloaded")
				if err := controller.SetAutoSync(context.Background(), fresh.Sync.Auto); err != nil {
					logger.Printf("Failed to apply auto-sync change: %v", err)
				}
			}, func(err error) {
				logger.Printf("Config reload failed: %v", err)
			})
		}

		fmt.Printf("Syncing %s against %s\n", cfg.DatabasePath(), cfg.RemoteURL)
		fmt.Println("Press Ctrl+C to stop")
		logger.Printf("Daemon started (interval=%v, retention=%dd)",
			cfg.Sync.Interval, cfg.Sync.RetentionDays)

		runProbeLoop(ctx, controller, client, logger)

		logger.Printf("Daemon stopping")
	},
}

// runProbeLoop pings the remote and keeps the controller's online state in
// step with reachability. Blocks until ctx is cancelled.
func runProbeLoop(ctx context.Context, controller *syncer.Controller, client remote.Client, logger *log.Logger) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, probeInterval)
		defer cancel()

		err := client.Ping(probeCtx)
		if err != nil && controller.IsOnline() {
			logger.Printf("Remote unreachable: %v", err)
		}
		controller.SetOnline(err == nil)
	}

	probe()

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// daemonLogger builds the daemon log sink: a rotating file when configured,
// stderr otherwise.
func daemonLogger(cfg *config.Config) *log.Logger {
	if cfg.Log.File == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	}, "[daemon] ", log.LstdFlags)
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
