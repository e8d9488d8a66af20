package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format, for sharing crawl
// results in issues and wikis.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteStatus writes the database summary, a per-network table and a pie
// chart of pages per network.
func (w *MarkdownWriter) WriteStatus(s *Status) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("darkcrawl status")
	md.PlainText("")

	rows := [][]string{
		{"Database", "`" + s.Database + "`"},
		{"Generated", timeOrDash(s.GeneratedAt)},
	}
	if s.LastRun != nil {
		rows = append(rows,
			[]string{"Last run", "`" + s.LastRun.ID + "`"},
			[]string{"Started", timeOrDash(s.LastRun.StartedAt)},
			[]string{"Finished", timeOrDash(s.LastRun.FinishedAt)},
		)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	c := s.Counts
	md.H2("Totals")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Seen", "Pending", "Done", "Dead", "Pages", "Links", "Correlations", "Runs"},
		Rows: [][]string{{
			itoa(c.Seen), itoa(c.Pending), itoa(c.Done), itoa(c.Dead),
			itoa(c.Pages), itoa(c.Links), itoa(c.Correlations), itoa(c.Runs),
		}},
	})
	md.PlainText("")

	md.H2("Networks")
	md.PlainText("")
	if len(s.Networks) == 0 {
		md.PlainText("No addresses stored yet.")
		md.PlainText("")
	} else {
		netRows := make([][]string, len(s.Networks))
		for i, n := range s.Networks {
			netRows[i] = []string{
				n.Network, itoa(n.Seen), itoa(n.Pending), itoa(n.Pages),
				itoa(n.Dead), itoa(n.Domains), itoa(n.Correlations),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Network", "Seen", "Pending", "Pages", "Dead", "Domains", "Facts"},
			Rows:   netRows,
		})
		md.PlainText("")
		w.writePagesChart(md, s)
	}

	switch {
	case c.Seen > 0 && c.Dead*2 > c.Seen:
		md.Warningf("%d of %d addresses are dead. Check that the proxies are healthy.", c.Dead, c.Seen)
	case c.Pending > 0:
		md.Note(fmt.Sprintf("%d addresses are pending and will be fetched on the next run.", c.Pending))
	default:
		md.Tip("Nothing is pending.")
	}
	md.PlainText("")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writePagesChart(md *markdown.Markdown, s *Status) {
	if s.Counts.Pages == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Pages per network"),
		piechart.WithShowData(true),
	)
	for _, n := range s.Networks {
		if n.Pages > 0 {
			chart.LabelAndIntValue(n.Network, uint64(n.Pages))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// WriteDead writes the dead letters as a table.
func (w *MarkdownWriter) WriteDead(d *DeadLetters) (int, error) {
	md := markdown.NewMarkdown(w.output)

	title := "Dead letters"
	if d.Filter != "" {
		title += " (" + d.Filter + ")"
	}
	md.H1(title)
	md.PlainText("")

	if len(d.Entries) == 0 {
		md.Tip("No dead letters.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(d.Entries))
	for i, e := range d.Entries {
		rows[i] = []string{
			"`" + e.CanonicalAddress + "`",
			e.Network.String(),
			string(e.Reason),
			strconv.Itoa(e.RetryCount),
			timeOrDash(e.LastAttemptAt),
			truncateString(e.LastError, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Address", "Network", "Reason", "Retries", "Last attempt", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	return len(md.String()), md.Build()
}

// WriteCorrelations writes the shared facts of a domain as a table, or one
// collapsible section per cluster.
func (w *MarkdownWriter) WriteCorrelations(c *Correlations) (int, error) {
	md := markdown.NewMarkdown(w.output)

	if c.Domain != "" {
		md.H1("Correlations of " + c.Domain)
		md.PlainText("")
		if len(c.Shared) == 0 {
			md.PlainText("No facts shared with other domains.")
			md.PlainText("")
			return len(md.String()), md.Build()
		}
		rows := make([][]string, len(c.Shared))
		for i, f := range c.Shared {
			rows[i] = []string{"`" + f.Domain + "`", string(f.Type), truncateString(f.Value, 60)}
		}
		md.Table(markdown.TableSet{Header: []string{"Domain", "Type", "Value"}, Rows: rows})
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	md.H1("Correlation clusters")
	md.PlainText("")
	if len(c.Clusters) == 0 {
		md.PlainText("No fact is shared by two or more domains.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(c.Clusters))
	for i, cl := range c.Clusters {
		rows[i] = []string{string(cl.Type), truncateString(cl.Value, 60), strconv.Itoa(len(cl.Domains))}
	}
	md.Table(markdown.TableSet{Header: []string{"Type", "Value", "Domains"}, Rows: rows})
	md.PlainText("")

	for _, cl := range c.Clusters {
		md.H3(fmt.Sprintf("%s: %s", cl.Type, truncateString(cl.Value, 60)))
		md.PlainText("")
		md.BulletList(cl.Domains...)
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// WriteSearch writes the hits as a table.
func (w *MarkdownWriter) WriteSearch(r *SearchResults) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(fmt.Sprintf("Search: %s", r.Query))
	md.PlainText("")

	if len(r.Hits) == 0 {
		md.Tip("No pages found.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(r.Hits))
	for i, h := range r.Hits {
		rows[i] = []string{
			"`" + h.URL + "`",
			h.Network,
			h.Title,
			truncateString(h.Snippet, 80),
			timeOrDash(h.FetchedAt),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Page", "Network", "Title", "Text", "Fetched"},
		Rows:   rows,
	})
	md.PlainText("")

	return len(md.String()), md.Build()
}
