package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/slackvault/internal/embedding"
	"github.com/raphaelgruber/slackvault/internal/indexer"
	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/pipeline"
	"github.com/raphaelgruber/slackvault/internal/vector"
)

var importSkipTraining bool

var importCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Ingest a Slack export archive from the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		archive := args[0]

		info, err := os.Stat(archive)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}

		job, err := docStore.CreateJob(ctx, filepath.Base(archive), info.Size())
		if err != nil {
			return err
		}
		if err := docStore.SetJobArchivePath(ctx, job.ID, archive); err != nil {
			return err
		}
		if err := docStore.AdvanceJob(ctx, job.ID, models.StatusUploaded, "Staged from CLI", 100); err != nil {
			return err
		}

		vectors := vector.New(cfg.ChromaHost, cfg.ChromaPort)
		embedder, err := embedding.New(cfg)
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}

		var trainer pipeline.TrainRunner = indexer.NewTrainer(docStore, vectors, embedder)
		if importSkipTraining {
			trainer = noopTrainer{}
		}

		controller, err := pipeline.New(docStore, indexer.NewImporter(docStore), trainer, cfg.ExtractDir, 1)
		if err != nil {
			return err
		}
		defer controller.Close()

		if err := controller.Start(ctx, job.ID); err != nil {
			return err
		}

		fmt.Printf("Job %s started\n", job.ID)
		return watchJob(cmd, job.ID)
	},
}

// watchJob polls the job until it reaches a terminal state, echoing
// progress lines as they change.
func watchJob(cmd *cobra.Command, jobID string) error {
	ctx := cmd.Context()
	var lastLine string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}

		job, err := docStore.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Progress != lastLine {
			fmt.Printf("[%3d%%] %s\n", job.ProgressPercent, job.Progress)
			lastLine = job.Progress
		}

		switch job.Status {
		case models.StatusComplete:
			return nil
		case models.StatusError:
			return fmt.Errorf("job failed: %s", job.Error)
		case models.StatusCancelled:
			return fmt.Errorf("job cancelled")
		}
	}
}

// noopTrainer skips the training stage for --skip-training runs.
type noopTrainer struct{}

func (noopTrainer) Run(_ context.Context, _ string, progress indexer.Progress) error {
	if progress != nil {
		progress("Training skipped", 100)
	}
	return nil
}

func init() {
	importCmd.Flags().BoolVar(&importSkipTraining, "skip-training", false, "import without generating embeddings")
	rootCmd.AddCommand(importCmd)
}
