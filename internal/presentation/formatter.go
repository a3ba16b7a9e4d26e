package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format string
}

// NewFormatter creates a new formatter. Unknown formats fall back to text.
func NewFormatter(writer io.Writer, format string) *Formatter {
	if format != FormatJSON {
		format = FormatText
	}
	return &Formatter{
		writer: writer,
		format: format,
	}
}

// FormatSummary prints a sync summary.
func (f *Formatter) FormatSummary(s SummaryDTO) error {
	if f.format == FormatJSON {
		return f.json(s)
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	for _, o := range s.Files {
		if o.State == "unchanged" {
			continue
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s", strings.ToUpper(o.State), o.Path, orDash(o.Flow), o.Metadata)
		if o.Error != "" {
			line += "\t" + firstLine(o.Error)
		}
		_, _ = fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f.writer, "Sync complete: %d succeeded, %d failed, %d unchanged (%dms)\n",
		s.Success, s.Errors, s.Unchanged, s.DurationMS)
	return err
}

// FormatCacheEntries prints the fingerprint cache.
func (f *Formatter) FormatCacheEntries(entries []CacheEntryDTO) error {
	if f.format == FormatJSON {
		return f.json(entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(f.writer, "cache is empty")
		return err
	}
	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.Fingerprint, e.Path)
	}
	return tw.Flush()
}

// FormatValidation prints validation results.
func (f *Formatter) FormatValidation(results []ValidationDTO) error {
	if f.format == FormatJSON {
		return f.json(results)
	}
	invalid := 0
	for _, r := range results {
		if r.Valid {
			_, _ = fmt.Fprintf(f.writer, "ok       %s (%s)\n", r.Path, r.Flow)
			continue
		}
		invalid++
		_, _ = fmt.Fprintf(f.writer, "invalid  %s\n", r.Path)
		for _, reason := range r.Reasons {
			_, _ = fmt.Fprintf(f.writer, "         - %s\n", reason)
		}
	}
	_, err := fmt.Fprintf(f.writer, "%d file(s) checked, %d invalid\n", len(results), invalid)
	return err
}

// FormatValue prints any value as JSON regardless of format.
func (f *Formatter) FormatValue(v any) error {
	return f.json(v)
}

func (f *Formatter) json(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
