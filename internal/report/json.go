package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
)

// JSONWriter outputs reports in JSON format for scripts and dashboards.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because the report types are small and already carry json
// tags; nothing here is on a hot path.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteStatus writes s as one JSON document.
func (w *JSONWriter) WriteStatus(s *Status) (int, error) {
	return w.writeJSON(s)
}

// WriteDead writes d as one JSON document. Entries is never null.
func (w *JSONWriter) WriteDead(d *DeadLetters) (int, error) {
	if d.Entries == nil {
		cp := *d
		cp.Entries = []model.DeadEntry{}
		d = &cp
	}
	return w.writeJSON(d)
}

// WriteCorrelations writes c as one JSON document.
func (w *JSONWriter) WriteCorrelations(c *Correlations) (int, error) {
	return w.writeJSON(c)
}

// WriteSearch writes r as one JSON document. Hits is never null.
func (w *JSONWriter) WriteSearch(r *SearchResults) (int, error) {
	if r.Hits == nil {
		cp := *r
		cp.Hits = []database.PageHit{}
		r = &cp
	}
	return w.writeJSON(r)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Trailing newline for better terminal output.
	data = append(data, '\n')
	return w.output.Write(data)
}
