// needscan is the command-line entry point for the scan engine: a worker
// daemon, an HTTP API server, and operator commands against the shared
// job database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/logging"
	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/storage/sqlite"
)

var (
	cfgFile string
	dbPath  string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "needscan",
	Short: "Scan orchestration and insight ranking engine",
	Long: `needscan turns clustered user posts into a ranked, diversity-aware
list of market insights. Workers claim queued scan jobs from a shared
database, score every cluster, and publish the results.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the job database (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig resolves the effective configuration from file, environment,
// and command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, debug)
}

func openStore(cfg *config.Config) (storage.Storage, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}
	return store, nil
}

// fatal prints the error and exits, the shared failure path for commands.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
