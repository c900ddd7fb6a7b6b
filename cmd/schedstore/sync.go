package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/confapp/schedstore/internal/dashboard"
	"github.com/confapp/schedstore/internal/model"
	"github.com/confapp/schedstore/internal/prefs"
	"github.com/confapp/schedstore/internal/remote"
	"github.com/confapp/schedstore/internal/store"
	"github.com/confapp/schedstore/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the remote schedule once and import it",
	Long: `Fetch the schedule snapshot for the configured year and replace the
local store's contents with it in a single transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.RemoteURL == "" {
			return fmt.Errorf("remote_url is not configured")
		}

		logger := newLogger(cfg, "[sync] ")
		st := store.New(cfg.DatabasePath, &store.Config{Logger: newLogger(cfg, "[store] ")})
		defer st.Close()

		client := remote.New(remote.Config{
			BaseURL:  cfg.RemoteURL,
			Year:     cfg.Year,
			CacheDir: cfg.CacheDir,
			Logger:   logger,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		start := time.Now()
		schedule, err := client.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		if err := st.PerformWriteSync(store.ImportSchedule{Schedule: schedule}); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Imported %d events across %d days in %v\n",
			schedule.EventCount(), len(schedule.Days), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the periodic synchronizer until interrupted",
	Long: `Run the synchronizer loop: an immediate sync attempt, then one attempt
per interval. When a dashboard port is configured, a WebSocket server
broadcasts imports and favorite changes to connected observers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.RemoteURL == "" {
			return fmt.Errorf("remote_url is not configured")
		}

		st := store.New(cfg.DatabasePath, &store.Config{Logger: newLogger(cfg, "[store] ")})
		defer st.Close()

		pf, err := prefs.Open(cfg.PrefsPath, newLogger(cfg, "[prefs] "))
		if err != nil {
			return fmt.Errorf("failed to open prefs: %w", err)
		}
		if err := pf.Watch(); err != nil {
			return fmt.Errorf("failed to watch prefs: %w", err)
		}
		defer pf.Close()

		client := remote.New(remote.Config{
			BaseURL:  cfg.RemoteURL,
			Year:     cfg.Year,
			CacheDir: cfg.CacheDir,
			Logger:   newLogger(cfg, "[remote] "),
		})

		syncConfig := syncer.Config{
			Interval: cfg.SyncInterval,
			Logger:   newLogger(cfg, "[sync] "),
		}

		// Optional dashboard: feeds observers, never blocks the data layer.
		var sy *syncer.Syncer
		if cfg.DashboardPort > 0 {
			dash := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: newLogger(cfg, "[dashboard] "),
			})
			if err := dash.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer dash.Stop()

			handler := dashboard.NewHandler(dash, newLogger(cfg, "[dashboard] "))
			syncConfig.OnImported = func(schedule *model.Schedule) {
				handler.OnImported(schedule)
				handler.OnSyncStatus(sy.Status())
			}
			sub := pf.Subscribe(handler.OnPrefsChange)
			defer sub.Cancel()
		}

		sy = syncer.New(st, client, syncConfig)
		sy.Start()
		defer sy.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "Received %s, shutting down\n", sig)
		return nil
	},
}
