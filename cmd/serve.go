package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/ssimulacra2/internal/server"
	"github.com/cwbudde/ssimulacra2/internal/store"
)

var (
	serveAddr      string
	serveStore     string
	serveMaxUpload int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP scoring service",
	Long: `Serves synchronous comparisons of uploaded images on /api/v1/score and
asynchronous jobs over image paths on /api/v1/jobs. With --store, every
completed job is saved as a report browsable on /api/v1/reports.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Report store directory (empty keeps results in memory only)")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload", server.DefaultMaxUpload, "Maximum request body of /api/v1/score in bytes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var reportStore store.Store
	if serveStore != "" {
		fsStore, err := store.NewFSStore(serveStore)
		if err != nil {
			return fmt.Errorf("failed to open report store: %w", err)
		}
		defer fsStore.Close()
		reportStore = fsStore
	}

	srv := server.NewServer(serveAddr, reportStore)
	srv.SetMaxUpload(serveMaxUpload)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
