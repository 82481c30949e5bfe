package curate

import (
	"time"

	"github.com/sells-group/decision-curator/internal/model"
)

// Record outcomes reported to an Observer.
const (
	OutcomeCurated = "curated"
	OutcomeFailed  = "failed"
)

// OutcomeExtracted is reported when the extractor kept a cleaned document.
// Fallbacks report the extractor's reason instead.
const OutcomeExtracted = "extracted"

// Observer receives per-record and per-file events from a Curator. It must be
// safe for concurrent use.
type Observer interface {
	RecordDone(outcome string, elapsed time.Duration)
	FileDone(status model.FileStatus, unchanged bool)
	Extraction(outcome string)
	CacheLookup(hit bool)
}

type nopObserver struct{}

func (nopObserver) RecordDone(string, time.Duration) {}
func (nopObserver) FileDone(model.FileStatus, bool)  {}
func (nopObserver) Extraction(string)                {}
func (nopObserver) CacheLookup(bool)                 {}
