package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/candidates"
	"github.com/nmery/needscan/internal/history"
	"github.com/nmery/needscan/internal/llm"
	"github.com/nmery/needscan/internal/scoring"
	"github.com/nmery/needscan/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a scan worker daemon",
	Long: `Run a worker that polls the job database for queued scans and executes
them. Any number of workers may share one database; each queued job is
claimed by exactly one of them.

Requires ANTHROPIC_API_KEY. Set NEEDSCAN_EMBED_ENDPOINT to let the worker
compute centroids for candidate files that ship without one.

On SIGINT or SIGTERM the worker finishes its in-flight scan before
exiting, so jobs are never left half-written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		gen, err := llm.NewAnthropicGenerator(log)
		if err != nil {
			return err
		}

		var embedder llm.Embedder
		if os.Getenv("NEEDSCAN_EMBED_ENDPOINT") != "" {
			embedder, err = llm.NewHTTPEmbedder()
			if err != nil {
				return err
			}
		}

		founderProfile, _ := cmd.Flags().GetString("founder-profile")
		profile := ""
		if founderProfile != "" {
			data, err := os.ReadFile(founderProfile)
			if err != nil {
				return fmt.Errorf("failed to read founder profile: %w", err)
			}
			profile = string(data)
		}

		ledger := history.NewLedger(store, cfg.History, log)
		loader := candidates.NewLoader(embedder, log)
		scorer := scoring.NewLLMScorer(gen, profile, log)

		w, err := worker.New(store, ledger, loader, scorer, cfg, log)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := w.Start(ctx); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info("shutdown signal received, draining", zap.String("signal", sig.String()))

		return w.Stop()
	},
}

func init() {
	workerCmd.Flags().String("founder-profile", "", "Path to a founder profile file for fit scoring")
	rootCmd.AddCommand(workerCmd)
}
