package model

import "time"

// RunStatus represents the state of a curation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one curation pass over a date window.
type Run struct {
	ID          string      `json:"id" bson:"_id"`
	WindowStart string      `json:"window_start" bson:"window_start"`
	WindowEnd   string      `json:"window_end" bson:"window_end"`
	Status      RunStatus   `json:"status" bson:"status"`
	Summary     *RunSummary `json:"summary,omitempty" bson:"summary,omitempty"`
	Error       string      `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at" bson:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// RunSummary holds the counters reported at the end of a run.
type RunSummary struct {
	RecordsProcessed int `json:"records_processed" bson:"records_processed"`
	RecordsCurated   int `json:"records_curated" bson:"records_curated"`
	RecordsFailed    int `json:"records_failed" bson:"records_failed"`

	FilesCopied      int `json:"files_copied" bson:"files_copied"`
	FilesTransformed int `json:"files_transformed" bson:"files_transformed"`
	FilesUnchanged   int `json:"files_unchanged" bson:"files_unchanged"`
	FilesMissing     int `json:"files_missing" bson:"files_missing"`
	FilesErrored     int `json:"files_errored" bson:"files_errored"`

	ExtractFallbacks int `json:"extract_fallbacks" bson:"extract_fallbacks"`
}

// Add accumulates o into s.
func (s *RunSummary) Add(o RunSummary) {
	s.RecordsProcessed += o.RecordsProcessed
	s.RecordsCurated += o.RecordsCurated
	s.RecordsFailed += o.RecordsFailed
	s.FilesCopied += o.FilesCopied
	s.FilesTransformed += o.FilesTransformed
	s.FilesUnchanged += o.FilesUnchanged
	s.FilesMissing += o.FilesMissing
	s.FilesErrored += o.FilesErrored
	s.ExtractFallbacks += o.ExtractFallbacks
}

// FilesTotal returns the number of file results counted.
func (s RunSummary) FilesTotal() int {
	return s.FilesCopied + s.FilesTransformed + s.FilesMissing + s.FilesErrored
}

// FileErrorRate is the share of file results that ended in error.
func (s RunSummary) FileErrorRate() float64 {
	total := s.FilesTotal()
	if total == 0 {
		return 0
	}
	return float64(s.FilesErrored) / float64(total)
}
