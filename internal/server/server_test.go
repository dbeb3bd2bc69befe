package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/store"
)

type fakeJobStore struct {
	jobs map[string]*models.Job
}

func (f *fakeJobStore) CreateJob(_ context.Context, filename string, size int64) (*models.Job, error) {
	job := &models.Job{
		ID:       fmt.Sprintf("job-%d", len(f.jobs)+1),
		Filename: filename,
		Size:     size,
		Status:   models.StatusUploading,
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobStore) SetJobArchivePath(_ context.Context, jobID, path string) error {
	f.jobs[jobID].ArchivePath = path
	return nil
}

func (f *fakeJobStore) SetJobSize(_ context.Context, jobID string, size int64) error {
	f.jobs[jobID].Size = size
	return nil
}

func (f *fakeJobStore) AdvanceJob(_ context.Context, jobID string, status models.Status, line string, pct int) error {
	job := f.jobs[jobID]
	job.Status = status
	job.Progress = line
	job.StageProgress = pct
	job.ProgressPercent = models.OverallPercent(status, pct)
	return nil
}

func (f *fakeJobStore) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, jobID)
	}
	return job, nil
}

func (f *fakeJobStore) ListJobs(_ context.Context) ([]models.Job, error) {
	var out []models.Job
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

type fakePipeline struct {
	started   []string
	cancelled []string
}

func (f *fakePipeline) Start(_ context.Context, jobID string) error {
	f.started = append(f.started, jobID)
	return nil
}

func (f *fakePipeline) Cancel(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeSearcher struct {
	results []models.SearchResult
	lastReq searchRequest
}

func (f *fakeSearcher) Search(_ context.Context, query string, alpha float64, limit int) ([]models.SearchResult, error) {
	f.lastReq = searchRequest{Query: query, HybridAlpha: alpha, Limit: limit}
	return f.results, nil
}

type fakeReader struct {
	conversations map[string]models.Conversation
	messages      []models.Message
	users         []models.User
}

func (f *fakeReader) ListConversations(context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, c := range f.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeReader) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrConversationNotFound, id)
	}
	return &c, nil
}

func (f *fakeReader) GetConversations(_ context.Context, ids []string) (map[string]models.Conversation, error) {
	out := make(map[string]models.Conversation)
	for _, id := range ids {
		if c, ok := f.conversations[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeReader) ConversationMessages(_ context.Context, convID, q string, page, pageSize int) ([]models.Message, error) {
	return f.messages, nil
}

func (f *fakeReader) ContextAround(_ context.Context, convID string, ts time.Time, n int) ([]models.Message, error) {
	return f.messages, nil
}

func (f *fakeReader) ListUsers(context.Context) ([]models.User, error) {
	return f.users, nil
}

type fakeCleaner struct {
	messagesCleared bool
	uploadsCleared  bool
}

func (f *fakeCleaner) ClearMessages(context.Context) error {
	f.messagesCleared = true
	return nil
}

func (f *fakeCleaner) ClearUploads(context.Context) error {
	f.uploadsCleared = true
	return nil
}

type fakeVectorCleaner struct {
	cleared bool
}

func (f *fakeVectorCleaner) Clear(context.Context) error {
	f.cleared = true
	return nil
}

type fixture struct {
	server   *Server
	jobs     *fakeJobStore
	pipeline *fakePipeline
	searcher *fakeSearcher
	reader   *fakeReader
	cleaner  *fakeCleaner
	vectors  *fakeVectorCleaner
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		jobs:     &fakeJobStore{jobs: make(map[string]*models.Job)},
		pipeline: &fakePipeline{},
		searcher: &fakeSearcher{},
		reader:   &fakeReader{conversations: make(map[string]models.Conversation)},
		cleaner:  &fakeCleaner{},
		vectors:  &fakeVectorCleaner{},
	}
	f.server = New(f.jobs, f.pipeline, f.searcher, f.reader, f.cleaner, f.vectors, filepath.Join(t.TempDir(), "uploads"))
	f.handler = f.server.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "export.zip")
	require.NoError(t, err)
	_, err = part.Write([]byte("zip bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"].(string)

	job := f.jobs.jobs[jobID]
	require.NotNil(t, job)
	assert.Equal(t, models.StatusUploaded, job.Status)
	assert.Contains(t, job.ArchivePath, jobID+"_export.zip")
	assert.Equal(t, int64(len("zip bytes")), job.Size, "true byte count must be persisted after streaming")

	data, err := os.ReadFile(job.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(data))
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/admin/upload", map[string]string{"nope": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportStatus(t *testing.T) {
	f := newFixture(t)
	f.jobs.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.StatusImporting, Progress: "Importing...", ProgressPercent: 42}

	rec := f.do(t, http.MethodGet, "/admin/import-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]jobStatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "job-1")
	assert.Equal(t, models.StatusImporting, resp["job-1"].Status)
	assert.Equal(t, 42, resp["job-1"].ProgressPercent)
}

func TestJobStatusNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/admin/import/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndCancel(t *testing.T) {
	f := newFixture(t)
	f.jobs.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.StatusUploaded}

	rec := f.do(t, http.MethodPost, "/admin/import/job-1/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-1"}, f.pipeline.started)

	rec = f.do(t, http.MethodPost, "/admin/import/job-1/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-1"}, f.pipeline.cancelled)

	rec = f.do(t, http.MethodPost, "/admin/restart-import/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.pipeline.started, 2)
}

func TestClearMessagesAlsoClearsVectors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/clear", clearRequest{Messages: true})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, f.cleaner.messagesCleared)
	assert.True(t, f.vectors.cleared, "vector store must be cleared in tandem with messages")
	assert.False(t, f.cleaner.uploadsCleared)
}

func TestClearAll(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/clear-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.cleaner.messagesCleared)
	assert.True(t, f.cleaner.uploadsCleared)
	assert.True(t, f.vectors.cleared)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.reader.conversations["C01"] = models.Conversation{ID: "C01", Name: "general", Kind: models.KindChannel}
	f.searcher.results = []models.SearchResult{
		{MessageID: "m1", ConversationID: "C01", Text: "database schema decisions", TS: ts, Score: 0.9, KeywordMatch: true},
	}

	rec := f.do(t, http.MethodPost, "/api/v1/search", searchRequest{Query: "database planning", HybridAlpha: 0.5, Limit: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "database planning", f.searcher.lastReq.Query)
	assert.Equal(t, 0.5, f.searcher.lastReq.HybridAlpha)

	var resp struct {
		Results []searchResultView `json:"results"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.True(t, resp.Results[0].KeywordMatch)
	require.NotNil(t, resp.Results[0].Conversation)
	assert.Equal(t, "general", resp.Results[0].Conversation.Name)
}

func TestSearchBadBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationViews(t *testing.T) {
	f := newFixture(t)
	f.reader.conversations["C01"] = models.Conversation{ID: "C01", Name: "general", Kind: models.KindChannel}
	f.reader.messages = []models.Message{{ID: "m1", ConversationID: "C01", Text: "hello"}}

	rec := f.do(t, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/conversations/C01?q=hello&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["page"])
	assert.Equal(t, "hello", resp["q"])

	rec = f.do(t, http.MethodGet, "/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContextEndpoint(t *testing.T) {
	f := newFixture(t)
	f.reader.messages = []models.Message{{ID: "m1"}, {ID: "m2"}}

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
	rec := f.do(t, http.MethodGet, "/api/v1/context/C01/"+ts, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/context/C01/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersEndpoint(t *testing.T) {
	f := newFixture(t)
	f.reader.users = []models.User{{Username: "alice", MessageCount: 3}}

	rec := f.do(t, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}
