// Package models defines the data structures persisted by slackvault.
package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an ingestion job.
type Status string

const (
	StatusUploading  Status = "UPLOADING"
	StatusUploaded   Status = "UPLOADED"
	StatusExtracting Status = "EXTRACTING"
	StatusExtracted  Status = "EXTRACTED"
	StatusImporting  Status = "IMPORTING"
	StatusImported   Status = "IMPORTED"
	StatusTraining   Status = "TRAINING"
	StatusComplete   Status = "COMPLETE"
	StatusError      Status = "ERROR"
	StatusCancelled  Status = "CANCELLED"
)

// transitions is the canonical state machine. Self-loops on active stages
// carry intra-stage progress updates.
var transitions = map[Status][]Status{
	StatusUploading:  {StatusUploaded, StatusError, StatusCancelled},
	StatusUploaded:   {StatusExtracting, StatusImporting, StatusError, StatusCancelled},
	StatusExtracting: {StatusExtracting, StatusExtracted, StatusError, StatusCancelled},
	StatusExtracted:  {StatusImporting, StatusError, StatusCancelled},
	StatusImporting:  {StatusImporting, StatusImported, StatusError, StatusCancelled},
	StatusImported:   {StatusTraining, StatusError, StatusCancelled},
	StatusTraining:   {StatusTraining, StatusComplete, StatusError, StatusCancelled},
	StatusComplete:   {},
	StatusError:      {StatusExtracting, StatusImporting},
	StatusCancelled:  {StatusExtracting, StatusImporting},
}

// CanTransition reports whether moving from one status to another is
// permitted by the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a job status update violates the
// state machine.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Active reports whether the status names a running pipeline stage.
func (s Status) Active() bool {
	switch s {
	case StatusExtracting, StatusImporting, StatusTraining:
		return true
	}
	return false
}

// Terminal reports whether the job can never advance again.
func (s Status) Terminal() bool {
	return s == StatusComplete
}

// stageBands maps each pipeline status from EXTRACTING to COMPLETE onto its
// slice of the overall progress range, so progress_percent is monotone
// across stages.
var stageBands = map[Status][2]int{
	StatusExtracting: {0, 30},
	StatusExtracted:  {30, 30},
	StatusImporting:  {30, 80},
	StatusImported:   {80, 80},
	StatusTraining:   {80, 100},
	StatusComplete:   {100, 100},
}

// OverallPercent projects a 0-100 stage progress into the overall 0-100
// progress for the given status.
func OverallPercent(status Status, stageProgress int) int {
	band, ok := stageBands[status]
	if !ok {
		return 0
	}
	if stageProgress < 0 {
		stageProgress = 0
	}
	if stageProgress > 100 {
		stageProgress = 100
	}
	return band[0] + (band[1]-band[0])*stageProgress/100
}

// Job is one ingestion run of an uploaded archive. Backed by the "uploads"
// collection; the Job Store is the single source of truth for lifecycle.
type Job struct {
	ID              string    `bson:"_id" json:"id"`
	Filename        string    `bson:"filename" json:"filename"`
	Size            int64     `bson:"size" json:"size"`
	ArchivePath     string    `bson:"archive_path,omitempty" json:"archive_path,omitempty"`
	ExtractPath     string    `bson:"extract_path,omitempty" json:"extract_path,omitempty"`
	Status          Status    `bson:"status" json:"status"`
	CurrentStage    string    `bson:"current_stage,omitempty" json:"current_stage,omitempty"`
	StageProgress   int       `bson:"stage_progress" json:"stage_progress"`
	Progress        string    `bson:"progress" json:"progress"`
	ProgressPercent int       `bson:"progress_percent" json:"progress_percent"`
	Error           string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}
