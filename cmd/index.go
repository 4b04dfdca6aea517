package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felo/emldecode/internal/db"
	"github.com/felo/emldecode/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the configured mail folder into the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		logger.Info("Indexing emails", "path", cfg.EmailsPath, "db", cfg.DBPath, "workers", cfg.Workers)

		verbose, _ := cmd.Flags().GetBool("progress")
		idx := indexer.NewIndexer(database, cfg.EmailsPath, logger).
			WithConcurrency(cfg.Workers).
			WithPreviewBytes(cfg.PreviewBytes)

		result, err := idx.IndexWithProgress(cmd.Context(), func(current, total int, filePath string) {
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", current, total, filePath)
			}
		})
		if err != nil {
			return err
		}

		stats, err := database.GetStats()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Files found:   %s\n", humanize.Comma(int64(result.TotalFound)))
		fmt.Fprintf(out, "New messages:  %s\n", humanize.Comma(int64(result.NewIndexed)))
		fmt.Fprintf(out, "Skipped:       %s\n", humanize.Comma(int64(result.Skipped)))
		fmt.Fprintf(out, "Failed:        %s\n", humanize.Comma(int64(result.Failed)))
		fmt.Fprintf(out, "Decode errors: %s\n", humanize.Comma(int64(result.DecodeErrors)))
		fmt.Fprintf(out, "Index total:   %s messages, %s parts\n",
			humanize.Comma(int64(stats.TotalEmails)), humanize.Comma(int64(stats.TotalParts)))
		for _, f := range result.FailedFiles {
			fmt.Fprintf(out, "  failed: %s\n", f)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("progress", false, "Print each file as it is processed")
}
