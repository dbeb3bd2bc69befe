package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/store"
)

// jobStatusView is the shape the UI polls.
type jobStatusView struct {
	Status          models.Status `json:"status"`
	Progress        string        `json:"progress"`
	ProgressPercent int           `json:"progress_percent"`
	Error           string        `json:"error,omitempty"`
}

func statusView(job *models.Job) jobStatusView {
	return jobStatusView{
		Status:          job.Status,
		Progress:        job.Progress,
		ProgressPercent: job.ProgressPercent,
		Error:           job.Error,
	}
}

// handleUpload streams a multipart archive to the uploads directory and
// creates the job. The job reaches UPLOADED only after the last byte is on
// disk.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("expected multipart upload: %w", err))
		return
	}

	var part *multipartFile
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if p.FormName() == "file" && p.FileName() != "" {
			part = &multipartFile{name: filepath.Base(p.FileName()), reader: p}
			break
		}
	}
	if part == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing file field"))
		return
	}

	job, err := s.jobs.CreateJob(ctx, part.name, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	target := filepath.Join(s.uploadsDir, job.ID+"_"+part.name)
	size, err := streamToFile(part.reader, target)
	if err != nil {
		_ = s.jobs.AdvanceJob(ctx, job.ID, models.StatusError, "Upload failed", 0)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.jobs.SetJobSize(ctx, job.ID, size); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.jobs.SetJobArchivePath(ctx, job.ID, target); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.jobs.AdvanceJob(ctx, job.ID, models.StatusUploaded, "Upload complete", 100); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   job.ID,
		"filename": part.name,
		"size":     size,
	})
}

type multipartFile struct {
	name   string
	reader io.Reader
}

func streamToFile(src io.Reader, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create uploads dir: %w", err)
	}
	dst, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("write upload: %w", err)
	}
	return n, nil
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make(map[string]jobStatusView, len(jobs))
	for i := range jobs {
		out[jobs[i].ID] = statusView(&jobs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, statusView(job))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if err := s.pipeline.Start(r.Context(), jobID); err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "job_id": jobID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if err := s.pipeline.Cancel(r.Context(), jobID); err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling", "job_id": jobID})
}

// clearRequest selects what to truncate. The vector collection always goes
// with messages so the stores cannot drift apart.
type clearRequest struct {
	Messages   bool `json:"messages"`
	Uploads    bool `json:"uploads"`
	Embeddings bool `json:"embeddings"`
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.clear(w, r, clearRequest{Messages: true, Uploads: true, Embeddings: true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid clear request: %w", err))
		return
	}
	s.clear(w, r, req)
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request, req clearRequest) {
	ctx := r.Context()

	if req.Messages {
		if err := s.cleaner.ClearMessages(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		req.Embeddings = true
	}
	if req.Embeddings {
		if err := s.vectors.Clear(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if req.Uploads {
		if err := s.cleaner.ClearUploads(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cleared": map[string]bool{
			"messages":   req.Messages,
			"uploads":    req.Uploads,
			"embeddings": req.Embeddings,
		},
	})
}

func statusForErr(err error) int {
	if errors.Is(err, store.ErrJobNotFound) || errors.Is(err, store.ErrConversationNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
