package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Operators grep these reports on headless crawl hosts
type SimpleWriter struct {
	baseWriter

	// errorWidth truncates dead letter errors. Zero shows them in full.
	errorWidth int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithErrorWidth truncates dead letter errors to n bytes.
func WithErrorWidth(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.errorWidth = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		errorWidth: 80,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteStatus writes the database summary and per-network health.
func (w *SimpleWriter) WriteStatus(s *Status) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "DARKCRAWL STATUS")
	fmt.Fprintf(&sb, "Database:      %s\n", s.Database)
	fmt.Fprintf(&sb, "Generated:     %s\n", timeOrDash(s.GeneratedAt))
	if s.LastRun != nil {
		fmt.Fprintf(&sb, "Last run:      %s (started %s, finished %s)\n",
			s.LastRun.ID, timeOrDash(s.LastRun.StartedAt), timeOrDash(s.LastRun.FinishedAt))
		fmt.Fprintf(&sb, "               %d seeds, %d pages\n", s.LastRun.Seeds, s.LastRun.Pages)
	}
	sb.WriteString("\n")

	writeSection(&sb, "TOTALS")
	c := s.Counts
	fmt.Fprintf(&sb, "  Seen:          %d\n", c.Seen)
	fmt.Fprintf(&sb, "  Pending:       %d\n", c.Pending)
	fmt.Fprintf(&sb, "  Done:          %d\n", c.Done)
	fmt.Fprintf(&sb, "  Dead:          %d\n", c.Dead)
	fmt.Fprintf(&sb, "  Pages:         %d\n", c.Pages)
	fmt.Fprintf(&sb, "  Links:         %d\n", c.Links)
	fmt.Fprintf(&sb, "  Correlations:  %d\n", c.Correlations)
	fmt.Fprintf(&sb, "  Runs:          %d\n", c.Runs)
	sb.WriteString("\n")

	writeSection(&sb, "NETWORKS")
	if len(s.Networks) == 0 {
		sb.WriteString("  No addresses stored yet\n")
	} else {
		fmt.Fprintf(&sb, "  %-10s %8s %8s %8s %8s %8s %8s\n",
			"NETWORK", "SEEN", "PENDING", "PAGES", "DEAD", "DOMAINS", "FACTS")
		for _, n := range s.Networks {
			fmt.Fprintf(&sb, "  %-10s %8d %8d %8d %8d %8d %8d\n",
				n.Network, n.Seen, n.Pending, n.Pages, n.Dead, n.Domains, n.Correlations)
		}
	}
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// WriteDead writes one block per dead letter.
func (w *SimpleWriter) WriteDead(d *DeadLetters) (int, error) {
	var sb strings.Builder

	title := "DEAD LETTERS"
	if d.Filter != "" {
		title += " (" + d.Filter + ")"
	}
	writeBanner(&sb, title)

	if len(d.Entries) == 0 {
		sb.WriteString("No dead letters\n")
		return w.output.Write([]byte(sb.String()))
	}

	for _, e := range d.Entries {
		fmt.Fprintf(&sb, "[%s] %s\n", e.Network, e.CanonicalAddress)
		fmt.Fprintf(&sb, "    Reason:  %s after %d retries\n", e.Reason, e.RetryCount)
		fmt.Fprintf(&sb, "    Last:    %s\n", timeOrDash(e.LastAttemptAt))
		if e.LastError != "" {
			msg := e.LastError
			if w.errorWidth > 0 {
				msg = truncateString(msg, w.errorWidth)
			}
			fmt.Fprintf(&sb, "    Error:   %s\n", msg)
		}
	}
	fmt.Fprintf(&sb, "\n%d dead letter(s)\n", len(d.Entries))

	return w.output.Write([]byte(sb.String()))
}

// WriteCorrelations writes the shared facts of a domain, or the clusters.
func (w *SimpleWriter) WriteCorrelations(c *Correlations) (int, error) {
	var sb strings.Builder

	if c.Domain != "" {
		writeBanner(&sb, "CORRELATIONS OF "+c.Domain)
		if len(c.Shared) == 0 {
			sb.WriteString("No facts shared with other domains\n")
		}
		for _, f := range c.Shared {
			fmt.Fprintf(&sb, "  %-40s %-20s %s\n", f.Domain, f.Type, f.Value)
		}
		return w.output.Write([]byte(sb.String()))
	}

	writeBanner(&sb, "CORRELATION CLUSTERS")
	if len(c.Clusters) == 0 {
		sb.WriteString("No fact is shared by two or more domains\n")
	}
	for _, cl := range c.Clusters {
		fmt.Fprintf(&sb, "[%s] %s (%d domains)\n", cl.Type, cl.Value, len(cl.Domains))
		for _, d := range cl.Domains {
			fmt.Fprintf(&sb, "    %s\n", d)
		}
	}
	return w.output.Write([]byte(sb.String()))
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
}

// WriteSearch writes one block per hit: network, URL and title, then the
// start of the page text.
func (w *SimpleWriter) WriteSearch(r *SearchResults) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, fmt.Sprintf("SEARCH %q", r.Query))
	if len(r.Hits) == 0 {
		sb.WriteString("No pages found\n")
		return w.output.Write([]byte(sb.String()))
	}

	for _, h := range r.Hits {
		fmt.Fprintf(&sb, "[%s] %s", h.Network, h.URL)
		if h.Title != "" {
			fmt.Fprintf(&sb, " - %s", h.Title)
		}
		sb.WriteString("\n")
		if h.Snippet != "" {
			fmt.Fprintf(&sb, "    %s\n", truncateString(h.Snippet, 100))
		}
	}
	fmt.Fprintf(&sb, "\n%d page(s) found\n", len(r.Hits))

	return w.output.Write([]byte(sb.String()))
}
