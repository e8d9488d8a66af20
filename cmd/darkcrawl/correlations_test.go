package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nao1215/darkcrawl/internal/report"
)

// TestCorrelationsCmd tests the correlations command.
func TestCorrelationsCmd(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "")
	dataDir := seedDB(t)

	t.Run("lists clusters", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "correlations", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "[favicon_hash] f1 (2 domains)") {
			t.Errorf("expected favicon cluster, got:\n%s", out)
		}
		if strings.Contains(out, "nginx") {
			t.Errorf("a fact of one domain is not a cluster, got:\n%s", out)
		}
	})

	t.Run("shared facts of an address", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "correlations", "--config", cfgPath, "--data-dir", dataDir,
			"http://"+testOnionHost+"/some/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "CORRELATIONS OF "+testOnionHost) || !strings.Contains(out, testB32Host) {
			t.Errorf("expected the i2p domain to be shared, got:\n%s", out)
		}
	})

	t.Run("domains of one fact as json", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "correlations", "--config", cfgPath, "--data-dir", dataDir,
			"--type", "favicon_hash", "--value", "f1", "-f", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got report.Correlations
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(got.Clusters) != 1 || len(got.Clusters[0].Domains) != 2 {
			t.Errorf("expected one cluster of 2 domains, got %+v", got.Clusters)
		}
	})

	t.Run("fact of one domain", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "correlations", "--config", cfgPath, "--data-dir", dataDir,
			"--type", "server_signature", "--value", "nginx")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No fact is shared") {
			t.Errorf("expected no cluster, got:\n%s", out)
		}
	})
}
