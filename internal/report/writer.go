package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
)

// ErrUnknownFormat is returned by ParseFormat for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Format selects a report writer.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat parses a format name. "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Status is a snapshot of the crawl database.
type Status struct {
	Database    string                   `json:"database"`
	GeneratedAt time.Time                `json:"generated_at"`
	Counts      database.Counts          `json:"counts"`
	Networks    []database.NetworkHealth `json:"networks"`
	LastRun     *database.Run            `json:"last_run,omitempty"`
}

// DeadLetters lists dead-lettered addresses.
type DeadLetters struct {
	// Filter describes the query, e.g. "network=i2p", for the header.
	Filter  string            `json:"filter,omitempty"`
	Entries []model.DeadEntry `json:"entries"`
}

// Correlations holds either the facts one domain shares with others or the
// clusters of domains sharing a fact.
type Correlations struct {
	// Domain is set when Shared lists that domain's shared facts.
	Domain   string                `json:"domain,omitempty"`
	Shared   []database.SharedFact `json:"shared,omitempty"`
	Clusters []database.Cluster    `json:"clusters,omitempty"`
}

// SearchResults lists the pages matching a text query.
type SearchResults struct {
	Query string             `json:"query"`
	Hits  []database.PageHit `json:"hits"`
}

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	WriteStatus(s *Status) (int, error)
	WriteDead(d *DeadLetters) (int, error)
	WriteCorrelations(c *Correlations) (int, error)
	WriteSearch(r *SearchResults) (int, error)
}

// NewWriter returns the writer of format writing to output.
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because each destination may want a different
// format: text on the terminal, markdown in the file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteStatus writes s to every writer and stops on the first error.
func (m *MultiWriter) WriteStatus(s *Status) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteStatus(s) })
}

// WriteDead writes d to every writer and stops on the first error.
func (m *MultiWriter) WriteDead(d *DeadLetters) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteDead(d) })
}

// WriteCorrelations writes c to every writer and stops on the first error.
func (m *MultiWriter) WriteCorrelations(c *Correlations) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteCorrelations(c) })
}

// WriteSearch writes r to every writer and stops on the first error.
func (m *MultiWriter) WriteSearch(r *SearchResults) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteSearch(r) })
}

func (m *MultiWriter) each(write func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := write(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// timeOrDash formats t, or "-" for the zero time.
func timeOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
