// Package cli provides the command-line interface for slackvault.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/slackvault/internal/config"
	"github.com/raphaelgruber/slackvault/internal/store"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	cfg        config.Config
	docStore   *store.Store
	logCleanup func() error
)

var rootCmd = &cobra.Command{
	Use:   "slackvault",
	Short: "Slack export ingestion and hybrid search",
	Long: `Slackvault ingests a Slack workspace export archive and turns it into a
searchable corpus: messages and conversation metadata in MongoDB, embeddings
in Chroma, and a hybrid lexical+semantic search API on top.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// A .env next to the binary is a convenience, not a requirement.
		_ = godotenv.Load()
		cfg = config.Load()

		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		logCleanup = cleanup

		if err := cfg.EnsureDirs(); err != nil {
			return fmt.Errorf("create data directories: %w", err)
		}

		ctx := cmd.Context()
		var err error
		docStore, err = store.Connect(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("connect to document store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if docStore != nil {
			if err := docStore.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close document store: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
