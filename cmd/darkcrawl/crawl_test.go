package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/darkcrawl/internal/config"
	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/report"
	"github.com/nao1215/darkcrawl/internal/scheduler"
)

const testUSK = "USK@0iU87PXyodL2nm6kCpmYntsteViIbMwlJE~wlqIVvZ0,nenxGvjXDElX5RIZxMvwSnOtRzUKJYjoXEDgkhY6Ljw,AQACAAE/sone/76"

// TestReadSeedFile tests seed list parsing.
func TestReadSeedFile(t *testing.T) {
	t.Parallel()

	content := "# seeds\nhttp://a.onion/\n\n   \n  forum.i2p  \n# done\n"

	t.Run("reads a file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "seeds.txt")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write seeds: %v", err)
		}
		seeds, err := readSeedFile(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seeds) != 2 || seeds[0] != "http://a.onion/" || seeds[1] != "forum.i2p" {
			t.Errorf("unexpected seeds %q", seeds)
		}
	})

	t.Run("dash reads stdin", func(t *testing.T) {
		t.Parallel()

		seeds, err := readSeedFile("-", strings.NewReader(content))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seeds) != 2 {
			t.Errorf("expected 2 seeds, got %q", seeds)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := readSeedFile(filepath.Join(t.TempDir(), "nope.txt"), nil); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

// TestSelectNetworks tests the --network override.
func TestSelectNetworks(t *testing.T) {
	t.Parallel()

	t.Run("enables exactly the named networks", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		if err := selectNetworks(cfg, []string{"i2p", " freenet "}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := joinNetworks(cfg.EnabledNetworks())
		if got != "i2p, hyphanet" {
			t.Errorf("enabled = %q, expected %q", got, "i2p, hyphanet")
		}
	})

	t.Run("unknown network", func(t *testing.T) {
		t.Parallel()

		if err := selectNetworks(config.NewConfig(), []string{"gnunet"}); err == nil {
			t.Error("expected error for unknown network")
		}
	})

	t.Run("zeronet fails validation", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		if err := selectNetworks(cfg, []string{"zeronet"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cfg.Validate(); !errors.Is(err, config.ErrZeroNetEnabled) {
			t.Errorf("expected ErrZeroNetEnabled, got %v", err)
		}
	})
}

// TestFormatForPath tests report format detection.
func TestFormatForPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want report.Format
	}{
		{"status.json", report.FormatJSON},
		{"STATUS.JSON", report.FormatJSON},
		{"status.txt", report.FormatText},
		{"crawl.log", report.FormatText},
		{"status.md", report.FormatMarkdown},
		{"status", report.FormatMarkdown},
	}
	for _, tt := range tests {
		if got := formatForPath(tt.path); got != tt.want {
			t.Errorf("formatForPath(%q) = %q, expected %q", tt.path, got, tt.want)
		}
	}
}

// TestCrawlCmdErrors tests the crawl command failures that happen before
// anything is fetched.
func TestCrawlCmdErrors(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "general:\n  max_depth: 3\n")

	t.Run("nothing to crawl", func(t *testing.T) {
		t.Parallel()

		_, err := executeCmd(t, "crawl", "--config", cfgPath, "--data-dir", t.TempDir())
		if !errors.Is(err, errNothingToCrawl) {
			t.Errorf("expected errNothingToCrawl, got %v", err)
		}
	})

	t.Run("unrecognized seed", func(t *testing.T) {
		t.Parallel()

		_, err := executeCmd(t, "crawl", "--config", cfgPath, "--data-dir", t.TempDir(), "not an address")
		if !errors.Is(err, scheduler.ErrUnknownSeed) {
			t.Errorf("expected ErrUnknownSeed, got %v", err)
		}
	})

	t.Run("seed of a disabled network", func(t *testing.T) {
		t.Parallel()

		_, err := executeCmd(t, "crawl", "--config", cfgPath, "--data-dir", t.TempDir(),
			"ukeu3k5oycgaauneqgtnvselmt4yemvoilkln7jpvamvfx7dnkdq.b32.i2p")
		if !errors.Is(err, scheduler.ErrNetworkDisabled) {
			t.Errorf("expected ErrNetworkDisabled, got %v", err)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()

		_, err := executeCmd(t, "crawl", "--config", cfgPath, "--data-dir", t.TempDir(), "--network", "zeronet")
		if !errors.Is(err, config.ErrZeroNetEnabled) {
			t.Errorf("expected ErrZeroNetEnabled, got %v", err)
		}
	})
}

// TestCrawlCmdHyphanetGateway crawls one Hyphanet site through a fake FProxy
// gateway until the frontier is idle.
func TestCrawlCmdHyphanetGateway(t *testing.T) {
	t.Parallel()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>Sone</title></head><body><p>No links here.</p></body></html>")
	}))
	defer gateway.Close()

	cfgPath := writeConfig(t, fmt.Sprintf(`
networks:
  tor:
    enabled: false
  hyphanet:
    enabled: true
    proxies:
      - %q
    wait_for_proxy: false
discovery:
  explicit_links: true
  source_mining: false
  header_aliases: false
  form_spidering: false
  infrastructure_probe: false
  pattern_mutation: false
frontier:
  bloom_capacity: 1000
`, gateway.Listener.Addr().String()))

	dataDir := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "reports", "status.json")

	out, err := executeCmd(t, "crawl",
		"--config", cfgPath,
		"--data-dir", dataDir,
		"--until-idle",
		"--report", reportPath,
		testUSK,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Crawling hyphanet: 1 seed(s) queued") {
		t.Errorf("expected crawl banner, got %q", out)
	}
	if !strings.Contains(out, "DARKCRAWL STATUS") {
		t.Errorf("expected final status, got %q", out)
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Errorf("expected report file: %v", err)
	}

	db, err := database.Open(dataDir, database.Options{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	counts, err := db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Pages != 1 || counts.Pending != 0 || counts.Runs != 1 {
		t.Errorf("expected 1 page, nothing pending and 1 run, got %+v", counts)
	}

	t.Run("resume without seeds has nothing to crawl", func(t *testing.T) {
		_, err := executeCmd(t, "crawl", "--config", cfgPath, "--data-dir", dataDir, "--until-idle")
		if !errors.Is(err, errNothingToCrawl) {
			t.Errorf("expected errNothingToCrawl, got %v", err)
		}
	})
}
