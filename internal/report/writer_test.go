package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
)

const (
	testOnion = "aaaqeayeaudaocajbifqydiob4ibceqtcqkrmfyydenbwha5dyp3kead.onion"
	testB32   = "ukeu3k5oycgaauneqgtnvselmt4yemvoilkln7jpvamvfx7dnkdq.b32.i2p"
)

// createTestStatus creates a status with sample data for testing.
func createTestStatus() *Status {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Status{
		Database:    "/var/lib/darkcrawl/crawl.db",
		GeneratedAt: started.Add(2 * time.Hour),
		Counts: database.Counts{
			Seen: 40, Pending: 5, Done: 30, Dead: 5,
			Pages: 30, Links: 120, Correlations: 18, Runs: 2,
		},
		Networks: []database.NetworkHealth{
			{Network: "tor", Seen: 30, Pending: 3, Pages: 25, Dead: 2, Domains: 9, Correlations: 15},
			{Network: "i2p", Seen: 10, Pending: 2, Pages: 5, Dead: 3, Domains: 4, Correlations: 3},
		},
		LastRun: &database.Run{
			ID:         "0b6d1c0e-7f55-4d6a-9c61-2d0e0d8c6a11",
			StartedAt:  started,
			FinishedAt: started.Add(time.Hour),
			Seeds:      3,
			Pages:      17,
		},
	}
}

// createTestDead creates dead letters with sample data for testing.
func createTestDead() *DeadLetters {
	return &DeadLetters{
		Filter: "network=tor",
		Entries: []model.DeadEntry{
			{
				CanonicalAddress: "http://" + testOnion + "/",
				Network:          model.NetworkTor,
				Domain:           testOnion,
				Reason:           model.DeadRetriesExhausted,
				RetryCount:       3,
				LastError:        "timeout: " + strings.Repeat("x", 200),
				LastAttemptAt:    time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
			},
		},
	}
}

// createTestClusters creates correlation clusters for testing.
func createTestClusters() *Correlations {
	return &Correlations{
		Clusters: []database.Cluster{
			{Type: model.CorrelationGoogleUA, Value: "UA-1234567-1", Domains: []string{testOnion, testB32}},
		},
	}
}

// TestParseFormat tests format name parsing.
func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "", want: FormatText},
		{input: "text", want: FormatText},
		{input: "md", want: FormatMarkdown},
		{input: "markdown", want: FormatMarkdown},
		{input: "json", want: FormatJSON},
		{input: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Errorf("expected ErrUnknownFormat, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v, want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

// TestNewWriter tests that NewWriter returns the writer of each format.
func TestNewWriter(t *testing.T) {
	t.Parallel()

	for _, format := range []Format{FormatText, FormatMarkdown, FormatJSON} {
		w, err := NewWriter(format, &bytes.Buffer{})
		if err != nil || w == nil {
			t.Errorf("NewWriter(%q) = %v, %v", format, w, err)
		}
	}
	if _, err := NewWriter("html", &bytes.Buffer{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes status", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteStatus(createTestStatus()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"DARKCRAWL STATUS",
			"/var/lib/darkcrawl/crawl.db",
			"0b6d1c0e-7f55-4d6a-9c61-2d0e0d8c6a11",
			"Pending:       5",
			"NETWORKS",
			"tor",
			"i2p",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("writes empty status", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteStatus(&Status{Database: "crawl.db"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No addresses stored yet") {
			t.Errorf("expected empty marker, got:\n%s", buf.String())
		}
		if strings.Contains(buf.String(), "Last run") {
			t.Error("expected no last run line")
		}
	})

	t.Run("truncates dead letter errors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithErrorWidth(20)).WriteDead(createTestDead()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "DEAD LETTERS (network=tor)") {
			t.Error("expected filter in header")
		}
		if !strings.Contains(output, "retries_exhausted after 3 retries") {
			t.Errorf("expected reason line, got:\n%s", output)
		}
		if strings.Contains(output, strings.Repeat("x", 30)) {
			t.Error("expected error to be truncated")
		}
		if !strings.Contains(output, "1 dead letter(s)") {
			t.Error("expected count footer")
		}
	})

	t.Run("writes no dead letters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteDead(&DeadLetters{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No dead letters") {
			t.Errorf("unexpected output:\n%s", buf.String())
		}
	})

	t.Run("writes clusters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteCorrelations(createTestClusters()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[google_analytics_ua] UA-1234567-1 (2 domains)") {
			t.Errorf("expected cluster line, got:\n%s", output)
		}
		if !strings.Contains(output, testB32) {
			t.Error("expected cluster member")
		}
	})

	t.Run("writes shared facts of a domain", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		c := &Correlations{
			Domain: testOnion,
			Shared: []database.SharedFact{{Domain: testB32, Type: model.CorrelationETag, Value: "\"5f3a-1b\""}},
		}
		if _, err := NewSimpleWriter(&buf).WriteCorrelations(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "CORRELATIONS OF "+testOnion) || !strings.Contains(output, "etag") {
			t.Errorf("unexpected output:\n%s", output)
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid status JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteStatus(createTestStatus()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		counts, ok := decoded["counts"].(map[string]any)
		if !ok || counts["pending"] != float64(5) {
			t.Errorf("unexpected counts: %v", decoded["counts"])
		}
		run, ok := decoded["last_run"].(map[string]any)
		if !ok || run["seeds"] != float64(3) {
			t.Errorf("unexpected last run: %v", decoded["last_run"])
		}
	})

	t.Run("network is written by name", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteDead(createTestDead()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"network":"tor"`) {
			t.Errorf("expected network name, got %s", buf.String())
		}
	})

	t.Run("empty entries are an empty array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteDead(&DeadLetters{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"entries":[]`) {
			t.Errorf("expected empty array, got %s", buf.String())
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).WriteCorrelations(createTestClusters()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"clusters\"") {
			t.Errorf("expected indented output, got %s", buf.String())
		}
		if !strings.HasSuffix(buf.String(), "}\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).WriteCorrelations(createTestClusters()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n>\t\"clusters\"") {
			t.Errorf("expected prefixed output, got %s", buf.String())
		}
	})
}

// TestMarkdownWriter tests the markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes status with chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteStatus(createTestStatus()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# darkcrawl status",
			"## Totals",
			"## Networks",
			"```mermaid",
			"Pages per network",
			"[!NOTE]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("warns when most addresses are dead", func(t *testing.T) {
		t.Parallel()

		s := createTestStatus()
		s.Counts.Dead = 30
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteStatus(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!WARNING]") {
			t.Errorf("expected warning, got:\n%s", buf.String())
		}
	})

	t.Run("no chart without pages", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteStatus(&Status{Database: "crawl.db"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "```mermaid") {
			t.Error("expected no chart")
		}
		if !strings.Contains(buf.String(), "[!TIP]") {
			t.Errorf("expected tip, got:\n%s", buf.String())
		}
	})

	t.Run("writes dead letters table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteDead(createTestDead()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "# Dead letters (network=tor)") {
			t.Error("expected header with filter")
		}
		if !strings.Contains(output, "retries_exhausted") || !strings.Contains(output, testOnion) {
			t.Errorf("expected entry row, got:\n%s", output)
		}
	})

	t.Run("writes clusters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteCorrelations(createTestClusters()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "### google_analytics_ua: UA-1234567-1") {
			t.Errorf("expected cluster section, got:\n%s", output)
		}
		if !strings.Contains(output, "- "+testB32) {
			t.Error("expected cluster members as a list")
		}
	})
}

// TestMultiWriter tests writing to multiple outputs.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var buf1, buf2 bytes.Buffer
	multi := NewMultiWriter(NewSimpleWriter(&buf1), NewJSONWriter(&buf2))

	n, err := multi.WriteStatus(createTestStatus())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != buf1.Len()+buf2.Len() {
		t.Errorf("expected %d bytes, got %d", buf1.Len()+buf2.Len(), n)
	}
	if strings.HasPrefix(buf1.String(), "{") {
		t.Error("expected buf1 (simple) to not be JSON")
	}
	if !strings.HasPrefix(buf2.String(), "{") {
		t.Error("expected buf2 (JSON) to contain JSON")
	}

	if _, err := multi.WriteDead(createTestDead()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := multi.WriteCorrelations(createTestClusters()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := multi.WriteSearch(&SearchResults{Query: "market"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestWriteSearch tests search output in every format.
func TestWriteSearch(t *testing.T) {
	t.Parallel()

	results := &SearchResults{
		Query: "escrow",
		Hits: []database.PageHit{{
			URL:       "http://" + testOnion + "/",
			Network:   "tor",
			Domain:    testOnion,
			Title:     "Market",
			Snippet:   "Escrow only. " + strings.Repeat("y", 200),
			FetchedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		}},
	}

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteSearch(results); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{`SEARCH "escrow"`, "[tor] http://" + testOnion + "/ - Market", "    Escrow only.", "1 page(s) found"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		if strings.Contains(out, strings.Repeat("y", 100)) {
			t.Error("expected the snippet to be truncated")
		}
	})

	t.Run("text without hits", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteSearch(&SearchResults{Query: "none"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No pages found") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteSearch(&SearchResults{Query: "none"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if hits, ok := decoded["hits"].([]any); !ok || len(hits) != 0 {
			t.Errorf("expected empty hits array, got %v", decoded["hits"])
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteSearch(results); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "# Search: escrow") || !strings.Contains(out, "Market") || !strings.Contains(out, testOnion) {
			t.Errorf("unexpected markdown:\n%s", out)
		}
	})
}

// TestTruncateString tests the truncateString helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}

	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
