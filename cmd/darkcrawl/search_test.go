package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
)

// pagesDB creates a database with a tor market page and an i2p forum page.
// It returns the data directory.
func pagesDB(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	fetched := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pages := []struct {
		network model.Network
		host    string
		title   string
		text    string
	}{
		{model.NetworkTor, testOnionHost, "Market", "Escrow only. Orders ship in 100% stealth packaging."},
		{model.NetworkI2P, testB32Host, "Forum", "Welcome to the forum. Ask about escrow here."},
	}
	for i, p := range pages {
		address := "http://" + p.host + "/"
		c := model.Candidate{
			RawAddress:       address,
			CanonicalAddress: address,
			Network:          p.network,
			Domain:           p.host,
			Tier:             model.TierCryptographic,
			Method:           model.MethodSeed,
		}
		if err := db.SavePage(context.Background(), &database.PageRecord{
			Candidate: c,
			Page: &model.PageResult{
				Address:     address,
				Network:     p.network,
				Domain:      p.host,
				StatusCode:  http.StatusOK,
				ContentType: "text/html",
				Title:       p.title,
				Text:        p.text,
				FetchedAt:   fetched.Add(time.Duration(i) * time.Hour),
			},
		}); err != nil {
			t.Fatalf("SavePage failed: %v", err)
		}
	}
	return dir
}

// TestSearchCmd tests the search command.
func TestSearchCmd(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "")
	dataDir := pagesDB(t)

	t.Run("matches title and text", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "search", "ESCROW", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{`SEARCH "ESCROW"`, "[tor] http://" + testOnionHost + "/ - Market", "[i2p] http://" + testB32Host + "/ - Forum", "2 page(s) found"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
		if strings.Index(out, "Forum") > strings.Index(out, "Market") {
			t.Errorf("expected the newest page first, got:\n%s", out)
		}
	})

	t.Run("words are joined into one query", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "search", "the", "forum", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "1 page(s) found") || !strings.Contains(out, "Forum") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("wildcards match literally", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "search", "100%", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "1 page(s) found") || !strings.Contains(out, "Market") {
			t.Errorf("unexpected output:\n%s", out)
		}

		out, err = executeCmd(t, "search", "_", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No pages found") {
			t.Errorf("expected no hits for a literal underscore, got:\n%s", out)
		}
	})

	t.Run("json with limit", func(t *testing.T) {
		t.Parallel()

		out, err := executeCmd(t, "search", "escrow", "--limit", "1", "-f", "json", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got struct {
			Query string             `json:"query"`
			Hits  []database.PageHit `json:"hits"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if got.Query != "escrow" || len(got.Hits) != 1 || got.Hits[0].Domain != testB32Host {
			t.Errorf("unexpected hits %+v", got)
		}
	})

	t.Run("blank query", func(t *testing.T) {
		t.Parallel()

		_, err := executeCmd(t, "search", "  ", "--config", cfgPath, "--data-dir", dataDir)
		if !errors.Is(err, database.ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
	})

	t.Run("requires a query", func(t *testing.T) {
		t.Parallel()

		if _, err := executeCmd(t, "search", "--config", cfgPath, "--data-dir", dataDir); err == nil {
			t.Error("expected an error without a query")
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, err := executeCmd(t, "search", "escrow", "--config", cfgPath, "--data-dir", t.TempDir())
		if !errors.Is(err, database.ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})
}
