package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/slackvault/internal/embedding"
	"github.com/raphaelgruber/slackvault/internal/indexer"
	"github.com/raphaelgruber/slackvault/internal/pipeline"
	"github.com/raphaelgruber/slackvault/internal/search"
	"github.com/raphaelgruber/slackvault/internal/server"
	"github.com/raphaelgruber/slackvault/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and pipeline workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		vectors := vector.New(cfg.ChromaHost, cfg.ChromaPort)
		embedder, err := embedding.New(cfg)
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}

		importer := indexer.NewImporter(docStore)
		trainer := indexer.NewTrainer(docStore, vectors, embedder)

		controller, err := pipeline.New(docStore, importer, trainer, cfg.ExtractDir, cfg.Workers)
		if err != nil {
			return err
		}
		defer controller.Close()

		engine := search.New(docStore, vectors, embedder)

		srv := server.New(docStore, controller, engine, docStore, docStore, vectors, cfg.UploadsDir())

		slog.Info("slackvault starting",
			"port", cfg.Port, "workers", cfg.Workers,
			"mongo_db", cfg.MongoDB, "embed_model", cfg.EmbedModel)

		return srv.ListenAndServe(ctx, ":"+cfg.Port)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
