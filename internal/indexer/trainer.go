package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/slackvault/internal/embedding"
	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/vector"
)

// embedBatchSize bounds peak memory per embedding request.
const embedBatchSize = 64

// Backoff policy for transient embedding and vector-store failures.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 16 * time.Second
	retryMaxAttempts     = 5
)

// TrainStore is the slice of the document store the training phase needs.
type TrainStore interface {
	CountMessages(ctx context.Context) (int64, error)
	StreamMessages(ctx context.Context, batchSize int, fn func([]models.Message) error) error
	ListMessageIDs(ctx context.Context) (map[string]bool, error)
	RecordFailedImport(ctx context.Context, f models.FailedImport) error
}

// VectorStore is the slice of the vector store the training phase needs.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []vector.Metadata, documents []string) error
	ListIDs(ctx context.Context, limit, offset int) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

// Embedder produces fixed-dimension vectors for batches of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Trainer drives the TRAINING stage: stream messages in deterministic order,
// embed them, and upsert the vectors. Embedding requests are issued
// sequentially per job so the local endpoint is never flooded.
type Trainer struct {
	store    TrainStore
	vectors  VectorStore
	embedder Embedder
}

// NewTrainer creates a trainer.
func NewTrainer(docStore TrainStore, vectors VectorStore, embedder Embedder) *Trainer {
	return &Trainer{store: docStore, vectors: vectors, embedder: embedder}
}

// Run embeds every message and writes the vectors. Transient failures retry
// with exponential backoff; a batch that keeps failing becomes a
// FailedImport and training continues. Dimension mismatches abort the job —
// retrying cannot fix a misconfigured model.
func (t *Trainer) Run(ctx context.Context, jobID string, progress Progress) error {
	total, err := t.store.CountMessages(ctx)
	if err != nil {
		return err
	}
	slog.Info("training starting", "job_id", jobID, "messages", total)

	var done int64
	err = t.store.StreamMessages(ctx, embedBatchSize, func(batch []models.Message) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.trainBatch(ctx, jobID, batch); err != nil {
			return err
		}

		done += int64(len(batch))
		if progress != nil {
			percent := int(done * 100 / max(total, 1))
			progress(fmt.Sprintf("Trained %d of %d messages", done, total), percent)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if total == 0 && progress != nil {
		progress("Trained 0 of 0 messages", 100)
	}

	if err := t.cullOrphans(ctx); err != nil {
		return err
	}

	slog.Info("training complete", "job_id", jobID, "messages", done)
	return nil
}

// trainBatch embeds one batch and upserts it, retrying transient failures.
func (t *Trainer) trainBatch(ctx context.Context, jobID string, batch []models.Message) error {
	ids := make([]string, len(batch))
	texts := make([]string, len(batch))
	metadatas := make([]vector.Metadata, len(batch))
	documents := make([]string, len(batch))

	for i, m := range batch {
		ids[i] = m.ID
		text := embedding.PrepareText(m.Text)
		if text == "" {
			// The model rejects empty prompts; index the kind instead.
			text = string(m.Type)
		}
		texts[i] = text
		documents[i] = snippet(text)
		metadatas[i] = vector.Metadata{
			"conversation_id": m.ConversationID,
			"username":        m.Username,
			"ts":              m.TS.UTC().Format(time.RFC3339),
		}
	}

	operation := func() error {
		vectors, err := t.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, embedding.ErrDimensionMismatch) {
				return backoff.Permanent(err)
			}
			return err
		}
		return t.vectors.Upsert(ctx, ids, vectors, metadatas, documents)
	}

	err := backoff.Retry(operation, backoff.WithContext(retryPolicy(), ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, embedding.ErrDimensionMismatch) || ctx.Err() != nil {
		return err
	}

	// Retry budget exhausted: record the batch and keep going.
	slog.Warn("embedding batch failed after retries", "job_id", jobID, "first_id", ids[0], "error", err)
	failure := models.FailedImport{
		JobID:      jobID,
		FilePath:   "training:" + ids[0],
		LineNumber: models.WholeFileLine,
		Error:      err.Error(),
	}
	if recordErr := t.store.RecordFailedImport(ctx, failure); recordErr != nil {
		slog.Warn("failed to record training failure", "error", recordErr)
	}
	return nil
}

// cullOrphans removes vectors whose message no longer exists, restoring the
// dual-write invariant after partial imports or clears.
func (t *Trainer) cullOrphans(ctx context.Context) error {
	known, err := t.store.ListMessageIDs(ctx)
	if err != nil {
		return err
	}

	const page = 1000
	var orphans []string
	for offset := 0; ; offset += page {
		ids, err := t.vectors.ListIDs(ctx, page, offset)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if !known[id] {
				orphans = append(orphans, id)
			}
		}
		if len(ids) < page {
			break
		}
	}

	if len(orphans) == 0 {
		return nil
	}
	slog.Info("culling orphan vectors", "count", len(orphans))
	return t.vectors.Delete(ctx, orphans)
}

// retryPolicy is a variable so tests can substitute a fast policy.
var retryPolicy = func() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	return backoff.WithMaxRetries(policy, retryMaxAttempts-1)
}

func snippet(text string) string {
	if len(text) <= vector.SnippetLimit {
		return text
	}
	return text[:vector.SnippetLimit]
}
