// Package indexer persists parser output into the document store and, in the
// training phase, publishes embeddings to the vector store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/slackvault/internal/export"
	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/store"
)

// messageBatchSize is how many messages are inserted per write.
const messageBatchSize = 500

// DocStore is the slice of the document store the import phase needs.
type DocStore interface {
	EnsureIndexes(ctx context.Context) error
	UpsertConversation(ctx context.Context, conv *models.Conversation) error
	MarkConversationArchived(ctx context.Context, convID, by string, at time.Time) error
	InsertMessages(ctx context.Context, msgs []*models.Message) (int, error)
	UpsertUserActivity(ctx context.Context, a store.UserActivity) error
	RecordFailedImport(ctx context.Context, f models.FailedImport) error
	UpsertFile(ctx context.Context, f models.File) error
}

// Progress publishes an intra-stage progress update.
type Progress func(line string, percent int)

// ImportStats summarises one import run.
type ImportStats struct {
	Files         int
	Conversations int
	Messages      int
	Failures      int
}

// Importer drives the IMPORTING stage: walk the extract tree, parse each
// message file, and persist the records.
type Importer struct {
	store DocStore
}

// NewImporter creates an importer over the document store.
func NewImporter(docStore DocStore) *Importer {
	return &Importer{store: docStore}
}

// Run imports an extracted tree. Per-file and per-line failures become
// FailedImport records and never halt the run; cancellation is honoured
// between files and between batches.
func (im *Importer) Run(ctx context.Context, jobID, extractPath string, progress Progress) (*ImportStats, error) {
	if err := im.store.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	root, err := export.FindRoot(extractPath)
	if err != nil {
		return nil, err
	}

	files, err := export.ListFiles(root)
	if err != nil {
		return nil, err
	}

	stats := &ImportStats{}
	total := len(files)
	slog.Info("import starting", "job_id", jobID, "files", total, "root", root)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := im.importFile(ctx, jobID, path, stats); err != nil {
			return stats, err
		}
		stats.Files++

		if progress != nil {
			percent := (i + 1) * 100 / max(total, 1)
			progress(fmt.Sprintf("Imported %d messages from %d of %d files", stats.Messages, i+1, total), percent)
		}
	}

	if total == 0 && progress != nil {
		progress("Imported 0 messages from 0 files", 100)
	}

	slog.Info("import complete", "job_id", jobID,
		"files", stats.Files, "messages", stats.Messages, "failures", stats.Failures)
	return stats, nil
}

// importFile parses and persists one message file. Parse failures are
// recorded and skipped; only store errors and cancellation propagate.
func (im *Importer) importFile(ctx context.Context, jobID, path string, stats *ImportStats) error {
	result, err := export.ParseFile(path)
	if err != nil {
		im.recordFailure(ctx, models.FailedImport{
			JobID:      jobID,
			FilePath:   path,
			LineNumber: models.WholeFileLine,
			Error:      err.Error(),
		})
		stats.Failures++
		return nil
	}

	for _, f := range result.Failures {
		im.recordFailure(ctx, models.FailedImport{
			JobID:      jobID,
			FilePath:   f.Path,
			LineNumber: f.Line,
			Line:       f.Text,
			Error:      f.Err,
		})
		stats.Failures++
	}

	conv := result.Conversation
	if conv == nil {
		return nil
	}
	if err := im.store.UpsertConversation(ctx, conv); err != nil {
		return err
	}
	stats.Conversations++

	activity := make(map[string]*store.UserActivity)

	for batch := range batches(result.Messages, messageBatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, msg := range batch {
			msg.ID = messageID(msg)
			if msg.Type == models.TypeArchive {
				if err := im.store.MarkConversationArchived(ctx, conv.ID, msg.Username, msg.TS); err != nil {
					return err
				}
			}
			for _, ref := range msg.Files {
				if ref.ID == "" {
					continue
				}
				file := models.File{
					ID:       ref.ID,
					Name:     ref.Name,
					Mimetype: ref.Mimetype,
					Path:     filepath.Join("files", ref.ID),
				}
				if err := im.store.UpsertFile(ctx, file); err != nil {
					return err
				}
			}
			accumulate(activity, msg)
		}

		inserted, err := im.store.InsertMessages(ctx, batch)
		if err != nil {
			return err
		}
		stats.Messages += inserted
	}

	for _, a := range activity {
		if err := im.store.UpsertUserActivity(ctx, *a); err != nil {
			return err
		}
	}

	return nil
}

func (im *Importer) recordFailure(ctx context.Context, f models.FailedImport) {
	// Failures are best-effort bookkeeping; a write error here must not
	// block the job.
	if err := im.store.RecordFailedImport(ctx, f); err != nil {
		slog.Warn("failed to record import failure", "file", f.FilePath, "error", err)
	}
}

// messageID builds the deterministic message id from its identity triple, so
// re-imports of the same extract tree produce the same ids.
func messageID(m *models.Message) string {
	return fmt.Sprintf("%s:%d:%d", m.ConversationID, m.TS.UnixMicro(), m.Seq)
}

func accumulate(activity map[string]*store.UserActivity, m *models.Message) {
	if m.Username == "" {
		return
	}
	a := activity[m.Username]
	if a == nil {
		a = &store.UserActivity{
			Username:     m.Username,
			Conversation: m.ConversationID,
			FirstSeen:    m.TS,
			LastSeen:     m.TS,
		}
		activity[m.Username] = a
	}
	if m.TS.Before(a.FirstSeen) {
		a.FirstSeen = m.TS
	}
	if m.TS.After(a.LastSeen) {
		a.LastSeen = m.TS
	}
	a.MessageCount++
}

// batches yields msgs in slices of size n.
func batches(msgs []*models.Message, n int) func(func([]*models.Message) bool) {
	return func(yield func([]*models.Message) bool) {
		for start := 0; start < len(msgs); start += n {
			end := min(start+n, len(msgs))
			if !yield(msgs[start:end]) {
				return
			}
		}
	}
}
