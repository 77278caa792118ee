package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nmery/needscan/internal/scan"
	"github.com/nmery/needscan/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve the scan API: job creation, status polling, and insight retrieval.
The server never executes scans itself; it only enqueues jobs for workers
sharing the same database.`,
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

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.ServerAddr
		}

		svc := scan.NewService(store, cfg, log)
		srv := server.New(svc, log)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			cancel()
		}()

		if err := srv.Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
