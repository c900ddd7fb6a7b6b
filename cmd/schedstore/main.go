// Command schedstore is the local data layer of a conference companion:
// an embedded schedule store, a periodic synchronizer, and small
// favorites/playback stores.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/confapp/schedstore/internal/config"
)

var (
	flagConfig string

	rootCmd = &cobra.Command{
		Use:   "schedstore",
		Short: "Conference schedule store and synchronizer",
		Long: `schedstore maintains a local SQLite copy of a conference schedule,
keeps it fresh from the remote snapshot, and manages favorites and
playback positions.`,
		SilenceUsage: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (YAML)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(tracksCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(favoriteCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config (or defaults).
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the component logger. When a log file is configured the
// daemon writes there through a rotating sink instead of stderr.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var sink io.Writer = os.Stderr
	if cfg.LogFile != "" {
		sink = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(sink, prefix, log.LstdFlags)
}
