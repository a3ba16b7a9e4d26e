package presentation

import (
	"sort"

	"github.com/zjrosen/flowsync/internal/pipeline"
	"github.com/zjrosen/flowsync/internal/synccache"
)

// OutcomeDTO is one file's result in a sync summary.
type OutcomeDTO struct {
	Path        string `json:"path"`
	State       string `json:"state"`
	Metadata    string `json:"metadata"`
	Flow        string `json:"flow,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
	Calls       int    `json:"calls"`
	DurationMS  int64  `json:"duration_ms"`
}

// SummaryDTO is a batch pass result.
type SummaryDTO struct {
	RunID      string       `json:"run_id"`
	Success    int          `json:"success"`
	Errors     int          `json:"errors"`
	Unchanged  int          `json:"unchanged"`
	DurationMS int64        `json:"duration_ms"`
	Files      []OutcomeDTO `json:"files"`
}

// CacheEntryDTO is one fingerprint cache entry.
type CacheEntryDTO struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
}

// ValidationDTO is one file's validation result.
type ValidationDTO struct {
	Path    string   `json:"path"`
	Flow    string   `json:"flow,omitempty"`
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// FromOutcome converts a pipeline outcome.
func FromOutcome(o pipeline.Outcome) OutcomeDTO {
	dto := OutcomeDTO{
		Path:        o.Path,
		State:       string(o.State),
		Metadata:    string(o.Metadata),
		Fingerprint: o.Fingerprint.Short(),
		Error:       o.ErrorMessage(),
		Calls:       o.Calls,
		DurationMS:  o.Duration.Milliseconds(),
	}
	if o.Ref.ID != "" {
		dto.Flow = o.Ref.String()
	}
	return dto
}

// FromSummary converts a batch summary, keeping outcome order.
func FromSummary(s pipeline.Summary) SummaryDTO {
	files := make([]OutcomeDTO, len(s.Outcomes))
	for i, o := range s.Outcomes {
		files[i] = FromOutcome(o)
	}
	return SummaryDTO{
		RunID:      s.RunID,
		Success:    s.Success,
		Errors:     s.Errors,
		Unchanged:  s.Unchanged,
		DurationMS: s.Duration.Milliseconds(),
		Files:      files,
	}
}

// FromEntries converts cache entries sorted by path.
func FromEntries(entries synccache.Entries) []CacheEntryDTO {
	dtos := make([]CacheEntryDTO, 0, len(entries))
	for path, fp := range entries {
		dtos = append(dtos, CacheEntryDTO{Path: path, Fingerprint: string(fp)})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Path < dtos[j].Path })
	return dtos
}
