// Package pipeline sequences the ingestion stages for each job: extraction,
// import, and vector training, with cooperative cancellation and resume.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/raphaelgruber/slackvault/internal/extract"
	"github.com/raphaelgruber/slackvault/internal/indexer"
	"github.com/raphaelgruber/slackvault/internal/models"
)

var (
	// ErrAlreadyRunning means the job has an active worker.
	ErrAlreadyRunning = errors.New("job is already running")

	// ErrNotStartable means the job's status does not permit a start.
	ErrNotStartable = errors.New("job cannot be started from its current status")

	// ErrNotRunning means a cancel arrived for a job with no active worker.
	ErrNotRunning = errors.New("job is not running")
)

// JobStore is the slice of the document store the controller drives. Every
// transition and progress bump writes through it.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	AdvanceJob(ctx context.Context, jobID string, status models.Status, progressLine string, stageProgress int) error
	RecordJobError(ctx context.Context, jobID, message string) error
	RecordJobCancel(ctx context.Context, jobID string) error
	SetJobExtractPath(ctx context.Context, jobID, path string) error
}

// ImportRunner is the import phase.
type ImportRunner interface {
	Run(ctx context.Context, jobID, extractPath string, progress indexer.Progress) (*indexer.ImportStats, error)
}

// TrainRunner is the training phase.
type TrainRunner interface {
	Run(ctx context.Context, jobID string, progress indexer.Progress) error
}

// ExtractFunc unpacks an archive; extract.Extract in production.
type ExtractFunc func(ctx context.Context, archivePath, destDir string, report extract.Progress) error

// Controller runs one background worker per job on a bounded pool. The
// per-job cancel flag is a context cancelled by Cancel; stages poll it
// between units of work.
type Controller struct {
	jobs       JobStore
	importer   ImportRunner
	trainer    TrainRunner
	extractFn  ExtractFunc
	extractDir func(jobID string) string
	pool       *ants.Pool

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates a controller with a worker pool of the given size.
func New(jobs JobStore, importer ImportRunner, trainer TrainRunner, extractDir func(jobID string) string, workers int) (*Controller, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Controller{
		jobs:       jobs,
		importer:   importer,
		trainer:    trainer,
		extractFn:  extract.Extract,
		extractDir: extractDir,
		pool:       pool,
		running:    make(map[string]context.CancelFunc),
	}, nil
}

// Close releases the worker pool. Running jobs are cancelled.
func (c *Controller) Close() {
	c.mu.Lock()
	for _, cancel := range c.running {
		cancel()
	}
	c.mu.Unlock()
	c.pool.Release()
}

// Start enqueues a pipeline run for a job. Jobs start from UPLOADED or
// restart from ERROR / CANCELLED; a non-empty extract tree skips extraction.
func (c *Controller) Start(ctx context.Context, jobID string) error {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.StatusUploaded, models.StatusError, models.StatusCancelled:
	default:
		return fmt.Errorf("%w: %s", ErrNotStartable, job.Status)
	}

	c.mu.Lock()
	if _, active := c.running[jobID]; active {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	c.running[jobID] = cancel
	c.mu.Unlock()

	err = c.pool.Submit(func() {
		defer c.finish(jobID, cancel)
		c.run(jobCtx, jobID)
	})
	if err != nil {
		c.finish(jobID, cancel)
		return fmt.Errorf("enqueue job: %w", err)
	}

	slog.Info("pipeline run enqueued", "job_id", jobID, "from", job.Status)
	return nil
}

// Cancel requests cancellation. The next stage checkpoint observes it and
// the job transitions to CANCELLED within one file or one batch.
func (c *Controller) Cancel(ctx context.Context, jobID string) error {
	c.mu.Lock()
	cancel, active := c.running[jobID]
	c.mu.Unlock()

	if active {
		cancel()
		slog.Info("cancel requested", "job_id", jobID)
		return nil
	}

	// No worker (e.g. after a restart): flip an active-looking job directly.
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Active() {
		return c.jobs.RecordJobCancel(ctx, jobID)
	}
	return fmt.Errorf("%w: %s", ErrNotRunning, jobID)
}

// Running reports whether a worker is active for the job.
func (c *Controller) Running(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, active := c.running[jobID]
	return active
}

func (c *Controller) finish(jobID string, cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	delete(c.running, jobID)
	c.mu.Unlock()
}

// run drives one job through the remaining stages. Failures are caught at
// stage boundaries: cancellation records CANCELLED, anything else records
// ERROR. The extract tree is never deleted here.
func (c *Controller) run(ctx context.Context, jobID string) {
	err := c.runStages(ctx, jobID)
	if err == nil {
		return
	}

	bg := context.Background()
	if errors.Is(err, context.Canceled) {
		if recErr := c.jobs.RecordJobCancel(bg, jobID); recErr != nil {
			slog.Error("failed to record cancel", "job_id", jobID, "error", recErr)
		}
		slog.Info("job cancelled", "job_id", jobID)
		return
	}

	if recErr := c.jobs.RecordJobError(bg, jobID, err.Error()); recErr != nil {
		slog.Error("failed to record error", "job_id", jobID, "error", recErr)
	}
	slog.Error("job failed", "job_id", jobID, "error", err)
}

func (c *Controller) runStages(ctx context.Context, jobID string) error {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	extractPath := job.ExtractPath
	if dirNonEmpty(extractPath) {
		slog.Info("extract tree present, skipping extraction", "job_id", jobID, "path", extractPath)
	} else {
		extractPath, err = c.runExtract(ctx, job)
		if err != nil {
			return err
		}
	}

	stats, err := c.runImport(ctx, jobID, extractPath)
	if err != nil {
		return err
	}

	return c.runTraining(ctx, jobID, stats)
}

func (c *Controller) runExtract(ctx context.Context, job *models.Job) (string, error) {
	if job.ArchivePath == "" {
		return "", errors.New("no archive on disk and no extract tree to resume from")
	}
	if _, err := os.Stat(job.ArchivePath); err != nil {
		return "", fmt.Errorf("archive missing: %w", err)
	}

	if err := c.jobs.AdvanceJob(ctx, job.ID, models.StatusExtracting, "Starting extraction...", 0); err != nil {
		return "", err
	}

	destDir := c.extractDir(job.ID)
	report := func(done, total, percent int) {
		line := fmt.Sprintf("Extracting files... %d/%d", done, total)
		if err := c.jobs.AdvanceJob(ctx, job.ID, models.StatusExtracting, line, percent); err != nil {
			slog.Warn("progress update failed", "job_id", job.ID, "error", err)
		}
	}

	if err := c.extractFn(ctx, job.ArchivePath, destDir, report); err != nil {
		return "", err
	}

	if err := c.jobs.SetJobExtractPath(ctx, job.ID, destDir); err != nil {
		return "", err
	}
	if err := c.jobs.AdvanceJob(ctx, job.ID, models.StatusExtracted, "Extraction complete", 100); err != nil {
		return "", err
	}
	return destDir, nil
}

func (c *Controller) runImport(ctx context.Context, jobID, extractPath string) (*indexer.ImportStats, error) {
	if err := c.jobs.AdvanceJob(ctx, jobID, models.StatusImporting, "Starting import...", 0); err != nil {
		return nil, err
	}

	progress := func(line string, percent int) {
		if err := c.jobs.AdvanceJob(ctx, jobID, models.StatusImporting, line, percent); err != nil {
			slog.Warn("progress update failed", "job_id", jobID, "error", err)
		}
	}

	stats, err := c.importer.Run(ctx, jobID, extractPath, progress)
	if err != nil {
		return nil, err
	}

	line := fmt.Sprintf("Import complete: %d messages from %d files", stats.Messages, stats.Files)
	if err := c.jobs.AdvanceJob(ctx, jobID, models.StatusImported, line, 100); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Controller) runTraining(ctx context.Context, jobID string, stats *indexer.ImportStats) error {
	if err := c.jobs.AdvanceJob(ctx, jobID, models.StatusTraining, "Starting training...", 0); err != nil {
		return err
	}

	progress := func(line string, percent int) {
		if err := c.jobs.AdvanceJob(ctx, jobID, models.StatusTraining, line, percent); err != nil {
			slog.Warn("progress update failed", "job_id", jobID, "error", err)
		}
	}

	if err := c.trainer.Run(ctx, jobID, progress); err != nil {
		return err
	}

	line := fmt.Sprintf("Complete: %d messages indexed", stats.Messages)
	return c.jobs.AdvanceJob(ctx, jobID, models.StatusComplete, line, 100)
}

// dirNonEmpty reports whether path is a directory with at least one entry.
func dirNonEmpty(path string) bool {
	if path == "" {
		return false
	}
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
