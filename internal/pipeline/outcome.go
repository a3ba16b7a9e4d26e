package pipeline

import (
	"time"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/synccache"
)

// State is the terminal state of one pipeline run.
type State string

const (
	Unchanged State = "unchanged"
	Created   State = "created"
	Updated   State = "updated"
	Failed    State = "failed"
)

// MetadataState records what happened to the secondary metadata store.
type MetadataState string

const (
	MetadataPublished MetadataState = "published"
	MetadataSkipped   MetadataState = "skipped"
	MetadataFailed    MetadataState = "failed"
)

// Outcome describes one pipeline run for one file.
type Outcome struct {
	Path        string
	State       State
	Metadata    MetadataState
	Ref         definition.Ref
	Fingerprint synccache.Fingerprint
	// Err is set when State is Failed.
	Err error
	// MetadataErr is set when Metadata is MetadataFailed. It never fails the run.
	MetadataErr error
	Calls       int
	Duration    time.Duration
	FinishedAt  time.Time
}

// Counts returns the (success, error) contribution of the outcome to a
// batch summary. Unchanged files count as neither.
func (o Outcome) Counts() (success, errs int) {
	switch o.State {
	case Created, Updated:
		return 1, 0
	case Failed:
		return 0, 1
	default:
		return 0, 0
	}
}

// Succeeded reports whether the file was applied remotely.
func (o Outcome) Succeeded() bool {
	return o.State == Created || o.State == Updated
}

// ErrorMessage returns Err as text, or "".
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Summary aggregates the outcomes of a batch pass.
type Summary struct {
	RunID     string
	Success   int
	Errors    int
	Unchanged int
	Outcomes  []Outcome
	Duration  time.Duration
}

// Add folds o into the summary.
func (s *Summary) Add(o Outcome) {
	success, errs := o.Counts()
	s.Success += success
	s.Errors += errs
	if o.State == Unchanged {
		s.Unchanged++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// Failed returns the failed outcomes.
func (s Summary) Failed() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.State == Failed {
			out = append(out, o)
		}
	}
	return out
}
