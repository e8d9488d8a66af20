package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
)

const (
	testOnionHost = "aaaqeayeaudaocajbifqydiob4ibceqtcqkrmfyydenbwha5dyp3kead.onion"
	testB32Host   = "ukeu3k5oycgaauneqgtnvselmt4yemvoilkln7jpvamvfx7dnkdq.b32.i2p"
)

// seedDB creates a database with one tor page address, one dead i2p
// address and a favicon shared by both domains. It returns the data
// directory.
func seedDB(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	tor := model.Candidate{
		RawAddress:       "http://" + testOnionHost + "/",
		CanonicalAddress: "http://" + testOnionHost + "/",
		Network:          model.NetworkTor,
		Domain:           testOnionHost,
		Tier:             model.TierCryptographic,
		Method:           model.MethodSeed,
		Priority:         model.Priority(model.TierCryptographic, 0),
	}
	i2p := model.Candidate{
		RawAddress:       "http://" + testB32Host + "/",
		CanonicalAddress: "http://" + testB32Host + "/",
		Network:          model.NetworkI2P,
		Domain:           testB32Host,
		Depth:            1,
		SourceAddress:    tor.CanonicalAddress,
		Tier:             model.TierCryptographic,
		Method:           model.MethodSourceMining,
		Priority:         model.Priority(model.TierCryptographic, 1),
	}
	for _, c := range []model.Candidate{tor, i2p} {
		if _, err := db.TryInsertUnique(ctx, c); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if _, err := db.RecordDead(ctx, model.DeadEntry{
		CanonicalAddress: i2p.CanonicalAddress,
		Network:          model.NetworkI2P,
		Domain:           testB32Host,
		Reason:           model.DeadRetriesExhausted,
		RetryCount:       3,
		LastError:        "proxy failure: tunnel build timeout",
	}); err != nil {
		t.Fatalf("RecordDead failed: %v", err)
	}
	if _, err := db.RecordCorrelations(ctx, []model.CorrelationFact{
		{Domain: testOnionHost, Type: model.CorrelationFaviconHash, Value: "f1"},
		{Domain: testB32Host, Type: model.CorrelationFaviconHash, Value: "f1"},
		{Domain: testOnionHost, Type: model.CorrelationServerSignature, Value: "nginx"},
	}); err != nil {
		t.Fatalf("RecordCorrelations failed: %v", err)
	}
	return dir
}

// TestStatusCmd tests the status command.
func TestStatusCmd(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "")
	dataDir := seedDB(t)

	t.Run("text output", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "status", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"DARKCRAWL STATUS", "Seen:          2", "tor", "i2p"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "status", "--config", cfgPath, "--data-dir", dataDir, "-f", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got struct {
			Counts database.Counts `json:"counts"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if got.Counts.Seen != 2 || got.Counts.Dead != 1 {
			t.Errorf("unexpected counts %+v", got.Counts)
		}
	})

	t.Run("markdown to file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "reports", "status.md")
		out, err := executeCmd(t, "status", "--config", cfgPath, "--data-dir", dataDir, "-f", "md", "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "" {
			t.Errorf("expected nothing on stdout, got %q", out)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# darkcrawl status") {
			t.Errorf("expected markdown heading, got:\n%s", content)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		if _, err := executeCmd(t, "status", "--config", cfgPath, "--data-dir", dataDir, "-f", "xml"); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("missing database is not created", func(t *testing.T) {
		t.Parallel()

		empty := t.TempDir()
		_, err := executeCmd(t, "status", "--config", cfgPath, "--data-dir", empty)
		if !errors.Is(err, database.ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(empty, database.FileName)); !os.IsNotExist(err) {
			t.Error("status must not create a database")
		}
	})
}
