package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raphaelgruber/slackvault/internal/models"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

func (s *Store) uploads() *mongo.Collection {
	return s.db.Collection(collUploads)
}

// CreateJob inserts a job in state UPLOADING and returns it.
func (s *Store) CreateJob(ctx context.Context, filename string, size int64) (*models.Job, error) {
	now := nowUTC()
	job := &models.Job{
		ID:        uuid.New().String(),
		Filename:  filename,
		Size:      size,
		Status:    models.StatusUploading,
		Progress:  "Uploading...",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.uploads().InsertOne(ctx, job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// allowedFrom lists the statuses a target status may be reached from.
func allowedFrom(to models.Status) []models.Status {
	var from []models.Status
	for _, s := range []models.Status{
		models.StatusUploading, models.StatusUploaded, models.StatusExtracting,
		models.StatusExtracted, models.StatusImporting, models.StatusImported,
		models.StatusTraining, models.StatusComplete, models.StatusError,
		models.StatusCancelled,
	} {
		if models.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// AdvanceJob atomically moves a job to a new status, updating the progress
// fields and updated_at. The filter enforces the state machine: the update
// matches only when the current status permits the transition, so concurrent
// writers serialise on the document.
func (s *Store) AdvanceJob(ctx context.Context, jobID string, status models.Status, progressLine string, stageProgress int) error {
	if stageProgress < 0 {
		stageProgress = 0
	}
	if stageProgress > 100 {
		stageProgress = 100
	}

	set := bson.M{
		"status":           status,
		"progress":         progressLine,
		"stage_progress":   stageProgress,
		"progress_percent": models.OverallPercent(status, stageProgress),
		"updated_at":       nowUTC(),
	}
	if status.Active() {
		set["current_stage"] = string(status)
	}
	if status != models.StatusError {
		set["error"] = ""
	}

	res, err := s.uploads().UpdateOne(ctx,
		bson.M{"_id": jobID, "status": bson.M{"$in": allowedFrom(status)}},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("advance job %s: %w", jobID, err)
	}
	if res.MatchedCount == 0 {
		job, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		return &models.InvalidTransitionError{From: job.Status, To: status}
	}
	return nil
}

// RecordJobError moves a job to ERROR with a descriptive message. The
// extract path is preserved for resume and debugging.
func (s *Store) RecordJobError(ctx context.Context, jobID, message string) error {
	_, err := s.uploads().UpdateOne(ctx,
		bson.M{"_id": jobID},
		bson.M{"$set": bson.M{
			"status":     models.StatusError,
			"error":      message,
			"progress":   "Error: " + message,
			"updated_at": nowUTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("record job error: %w", err)
	}
	return nil
}

// RecordJobCancel moves a job to CANCELLED, preserving the extract path.
func (s *Store) RecordJobCancel(ctx context.Context, jobID string) error {
	_, err := s.uploads().UpdateOne(ctx,
		bson.M{"_id": jobID},
		bson.M{"$set": bson.M{
			"status":     models.StatusCancelled,
			"progress":   "Cancelled",
			"updated_at": nowUTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("record job cancel: %w", err)
	}
	return nil
}

// SetJobArchivePath records where the staged archive landed.
func (s *Store) SetJobArchivePath(ctx context.Context, jobID, path string) error {
	return s.setJobField(ctx, jobID, "archive_path", path)
}

// SetJobSize records the archive byte count once the upload stream has been
// fully written.
func (s *Store) SetJobSize(ctx context.Context, jobID string, size int64) error {
	return s.setJobField(ctx, jobID, "size", size)
}

// SetJobExtractPath records the extraction root once extraction completes.
func (s *Store) SetJobExtractPath(ctx context.Context, jobID, path string) error {
	return s.setJobField(ctx, jobID, "extract_path", path)
}

func (s *Store) setJobField(ctx context.Context, jobID, field string, value any) error {
	_, err := s.uploads().UpdateOne(ctx,
		bson.M{"_id": jobID},
		bson.M{"$set": bson.M{field: value, "updated_at": nowUTC()}},
	)
	if err != nil {
		return fmt.Errorf("set job %s: %w", field, err)
	}
	return nil
}

// GetJob fetches one job.
func (s *Store) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := s.uploads().FindOne(ctx, bson.M{"_id": jobID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns all jobs, most recent first.
func (s *Store) ListJobs(ctx context.Context) ([]models.Job, error) {
	cursor, err := s.uploads().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}
