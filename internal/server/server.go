// Package server exposes the HTTP surface consumed by the admin UI and the
// search API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/slackvault/internal/models"
)

// JobStore is the job lifecycle surface the handlers need.
type JobStore interface {
	CreateJob(ctx context.Context, filename string, size int64) (*models.Job, error)
	SetJobArchivePath(ctx context.Context, jobID, path string) error
	SetJobSize(ctx context.Context, jobID string, size int64) error
	AdvanceJob(ctx context.Context, jobID string, status models.Status, progressLine string, stageProgress int) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
}

// Pipeline starts and cancels ingestion runs.
type Pipeline interface {
	Start(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
}

// Searcher executes hybrid queries.
type Searcher interface {
	Search(ctx context.Context, query string, alpha float64, limit int) ([]models.SearchResult, error)
}

// Reader serves the read-only views over the document store.
type Reader interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversations(ctx context.Context, ids []string) (map[string]models.Conversation, error)
	ConversationMessages(ctx context.Context, convID, q string, page, pageSize int) ([]models.Message, error)
	ContextAround(ctx context.Context, convID string, ts time.Time, n int) ([]models.Message, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Cleaner truncates document-store collections.
type Cleaner interface {
	ClearMessages(ctx context.Context) error
	ClearUploads(ctx context.Context) error
}

// VectorCleaner truncates the vector collection in tandem with messages.
type VectorCleaner interface {
	Clear(ctx context.Context) error
}

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	jobs       JobStore
	pipeline   Pipeline
	searcher   Searcher
	reader     Reader
	cleaner    Cleaner
	vectors    VectorCleaner
	uploadsDir string
}

// New creates a server.
func New(jobs JobStore, pipeline Pipeline, searcher Searcher, reader Reader, cleaner Cleaner, vectors VectorCleaner, uploadsDir string) *Server {
	return &Server{
		jobs:       jobs,
		pipeline:   pipeline,
		searcher:   searcher,
		reader:     reader,
		cleaner:    cleaner,
		vectors:    vectors,
		uploadsDir: uploadsDir,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /admin/upload", s.handleUpload)
	mux.HandleFunc("GET /admin/import-status", s.handleImportStatus)
	mux.HandleFunc("GET /admin/import/{job_id}/status", s.handleJobStatus)
	mux.HandleFunc("POST /admin/import/{job_id}/start", s.handleStart)
	mux.HandleFunc("POST /admin/import/{job_id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /admin/restart-import/{job_id}", s.handleStart)
	mux.HandleFunc("POST /admin/clear-all", s.handleClearAll)
	mux.HandleFunc("POST /admin/clear", s.handleClear)

	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/users", s.handleUsers)
	mux.HandleFunc("GET /api/v1/context/{conversation_id}/{ts}", s.handleContext)

	mux.HandleFunc("GET /conversations", s.handleConversations)
	mux.HandleFunc("GET /conversations/{id}", s.handleConversation)

	return Logging(mux)
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
