package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/store"
)

const headerSep = "#################################################################"

// fakeDocStore collects everything the importer writes.
type fakeDocStore struct {
	conversations []*models.Conversation
	messages      []*models.Message
	activity      []store.UserActivity
	failures      []models.FailedImport
	files         []models.File
	archived      map[string]string
	indexCalls    int
}

func (f *fakeDocStore) EnsureIndexes(context.Context) error {
	f.indexCalls++
	return nil
}

func (f *fakeDocStore) UpsertConversation(_ context.Context, conv *models.Conversation) error {
	f.conversations = append(f.conversations, conv)
	return nil
}

func (f *fakeDocStore) MarkConversationArchived(_ context.Context, convID, by string, _ time.Time) error {
	if f.archived == nil {
		f.archived = make(map[string]string)
	}
	f.archived[convID] = by
	return nil
}

func (f *fakeDocStore) InsertMessages(_ context.Context, msgs []*models.Message) (int, error) {
	f.messages = append(f.messages, msgs...)
	return len(msgs), nil
}

func (f *fakeDocStore) UpsertUserActivity(_ context.Context, a store.UserActivity) error {
	f.activity = append(f.activity, a)
	return nil
}

func (f *fakeDocStore) RecordFailedImport(_ context.Context, fi models.FailedImport) error {
	f.failures = append(f.failures, fi)
	return nil
}

func (f *fakeDocStore) UpsertFile(_ context.Context, file models.File) error {
	f.files = append(f.files, file)
	return nil
}

func writeExportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	channel := `Channel Name: #general
Channel ID: C01
Created: 2023-06-01 10:00:00 UTC by alice
Type: Channel
` + headerSep + `
Messages:

---- 2023-06-22 ----
[2023-06-22 15:56:54 UTC] <alice> hello there
[2023-06-22 15:57:10 UTC] bob joined the channel
[2023-06-22 16:00:00 UTC] (channel_archive) <alice> {"text": "archived the channel"}
`
	dm := `Private conversation between alice, bob
Channel ID: D02
Created: 2023-07-01 08:00:00 UTC
Type: Direct Message
` + headerSep + `
Messages:

[2023-07-11 21:17:07 UTC] <alice> hi
[2023-07-11 21:18:00 UTC] bob shared files F0TEST with text:
    the quarterly report
`
	broken := "this file has no separator and is not a message file\n"

	files := map[string]string{
		filepath.Join(root, "channels", "general", "general.txt"): channel,
		filepath.Join(root, "dms", "alice-bob", "alice-bob.txt"):  dm,
		filepath.Join(root, "channels", "broken", "broken.txt"):   broken,
	}
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestImporterRun(t *testing.T) {
	root := writeExportTree(t)
	docs := &fakeDocStore{}
	im := NewImporter(docs)

	var lastPercent int
	stats, err := im.Run(context.Background(), "job-1", root, func(line string, percent int) {
		assert.GreaterOrEqual(t, percent, lastPercent, "progress must not go backwards")
		lastPercent = percent
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Conversations)
	assert.Equal(t, 5, stats.Messages)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 100, lastPercent)
	assert.Equal(t, 1, docs.indexCalls)

	// Whole-file failure carries the path and the sentinel line number.
	require.Len(t, docs.failures, 1)
	assert.Contains(t, docs.failures[0].FilePath, "broken.txt")
	assert.Equal(t, models.WholeFileLine, docs.failures[0].LineNumber)
	assert.Equal(t, "job-1", docs.failures[0].JobID)

	// The archive message marks the conversation archived.
	assert.Equal(t, "alice", docs.archived["C01"])

	// File-share metadata lands in the files collection.
	require.Len(t, docs.files, 1)
	assert.Equal(t, "F0TEST", docs.files[0].ID)

	// Every persisted message carries an id and a dedup hash.
	for _, m := range docs.messages {
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.TextHash)
	}

	// User activity accumulated per conversation.
	byUser := make(map[string][]store.UserActivity)
	for _, a := range docs.activity {
		byUser[a.Username] = append(byUser[a.Username], a)
	}
	require.Len(t, byUser["alice"], 2, "alice is active in both conversations")
}

func TestImporterDeterministicIDs(t *testing.T) {
	root := writeExportTree(t)

	first := &fakeDocStore{}
	_, err := NewImporter(first).Run(context.Background(), "job-1", root, nil)
	require.NoError(t, err)

	second := &fakeDocStore{}
	_, err = NewImporter(second).Run(context.Background(), "job-2", root, nil)
	require.NoError(t, err)

	require.Equal(t, len(first.messages), len(second.messages))
	for i := range first.messages {
		assert.Equal(t, first.messages[i].ID, second.messages[i].ID,
			"re-running the same tree must produce the same ids")
	}
}

func TestImporterCancelled(t *testing.T) {
	root := writeExportTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImporter(&fakeDocStore{}).Run(ctx, "job-1", root, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestImporterMissingExportRoot(t *testing.T) {
	_, err := NewImporter(&fakeDocStore{}).Run(context.Background(), "job-1", t.TempDir(), nil)
	require.Error(t, err)
}
