package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/handlers"
	"github.com/felo/emldecode/internal/indexer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API over the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		// Set emails path for resolving relative source paths
		database.SetEmailsPath(cfg.EmailsPath)
		logger.Info("Database opened", "db", cfg.DBPath, "emails", cfg.EmailsPath)

		if noIndex, _ := cmd.Flags().GetBool("no-index"); !noIndex {
			indexOnStartup(ctx, database)
		}

		h := handlers.New(database, cfg, logger).WithContext(ctx)

		srv := &http.Server{
			Addr:         cfg.Address(),
			Handler:      h.Routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // SSE connections stay open
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting server", "url", cfg.URL())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("Shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	},
}

// indexOnStartup refreshes the index when the mail folder exists. Failures
// are logged; the server still starts on the existing index.
func indexOnStartup(ctx context.Context, database *db.DB) {
	if _, err := os.Stat(cfg.EmailsPath); os.IsNotExist(err) {
		logger.Warn("Emails directory not found, serving existing index", "path", cfg.EmailsPath)
		return
	}

	result, err := indexer.NewIndexer(database, cfg.EmailsPath, logger).
		WithConcurrency(cfg.Workers).
		WithPreviewBytes(cfg.PreviewBytes).
		IndexAll(ctx)
	if err != nil {
		logger.Warn("Indexing failed", "error", err)
		return
	}
	logger.Info("Indexing complete", "new", result.NewIndexed, "skipped", result.Skipped, "failed", result.Failed)
}

func init() {
	serveCmd.Flags().Bool("no-index", false, "Skip indexing the mail folder on startup")
}
