package models

import "time"

// WholeFileLine marks a FailedImport that covers an entire file rather than a
// single line.
const WholeFileLine = -1

// FailedImport records a single unrecoverable parse or write failure that did
// not abort the job.
type FailedImport struct {
	ID         string    `bson:"_id" json:"id"`
	JobID      string    `bson:"job_id" json:"job_id"`
	FilePath   string    `bson:"file_path" json:"file_path"`
	LineNumber int       `bson:"line_number" json:"line_number"`
	Line       string    `bson:"line,omitempty" json:"line,omitempty"`
	Error      string    `bson:"error" json:"error"`
	CapturedAt time.Time `bson:"captured_at" json:"captured_at"`
}
