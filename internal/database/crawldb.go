package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file created inside the data directory.
const FileName = "darkcrawl.db"

// CrawlDB provides SQLite-based storage for the crawler: the durable queue of
// seen addresses, fetched pages and their links, correlation facts, dead
// letters and crawl runs.
//
// Design decision: One database file per data directory, shared by every
// network. Correlation queries join domains across networks, which only
// works when all facts live in one place.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	mu    sync.Mutex
	runID string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s (use CreateIfNotExists option to create)", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has one writer. A single connection also serializes the
	// insert-if-absent checks of concurrent workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Every address ever admitted. The row is the durable queue entry:
	-- pending rows are restored into the frontier on restart.
	CREATE TABLE IF NOT EXISTS seen_addresses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		canonical_address TEXT NOT NULL UNIQUE,
		raw_address TEXT,
		network TEXT NOT NULL,
		domain TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		source_address TEXT,
		tier INTEGER NOT NULL DEFAULT 0,
		method TEXT NOT NULL,
		priority REAL NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		run_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_seen_status ON seen_addresses(status);
	CREATE INDEX IF NOT EXISTS idx_seen_network ON seen_addresses(network);
	CREATE INDEX IF NOT EXISTS idx_seen_domain ON seen_addresses(domain);

	-- Page records store individual page fetches
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		final_url TEXT,
		network TEXT NOT NULL,
		domain TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		text_excerpt TEXT,
		body_hash TEXT,
		headers TEXT,
		header_order TEXT,
		fetched_at DATETIME,
		elapsed_ms INTEGER,
		depth INTEGER,
		method TEXT,
		run_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pages_domain ON pages(domain);
	CREATE INDEX IF NOT EXISTS idx_pages_network ON pages(network);

	CREATE TABLE IF NOT EXISTS page_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_url TEXT NOT NULL,
		to_url TEXT NOT NULL,
		method TEXT NOT NULL,
		UNIQUE(from_url, to_url)
	);

	CREATE INDEX IF NOT EXISTS idx_links_to ON page_links(to_url);

	-- Facts are insert-only; the triple is the identity.
	CREATE TABLE IF NOT EXISTS correlations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		correlation_type TEXT NOT NULL,
		value TEXT NOT NULL,
		first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(domain, correlation_type, value)
	);

	CREATE INDEX IF NOT EXISTS idx_corr_value ON correlations(correlation_type, value);

	CREATE TABLE IF NOT EXISTS dead_letters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		canonical_address TEXT NOT NULL UNIQUE,
		network TEXT NOT NULL,
		domain TEXT NOT NULL,
		reason TEXT NOT NULL,
		retry_count INTEGER NOT NULL,
		last_error TEXT,
		last_attempt_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_dead_network ON dead_letters(network);

	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		seeds INTEGER NOT NULL DEFAULT 0,
		pages INTEGER NOT NULL DEFAULT 0
	);
	`

	if _, err := cdb.db.ExecContext(context.Background(), schema); err != nil {
		return err
	}
	return cdb.migrate()
}

// migrate adds the columns introduced after a database was created.
func (cdb *CrawlDB) migrate() error {
	has, err := cdb.hasColumn("pages", "text_excerpt")
	if err != nil {
		return err
	}
	if !has {
		if _, err := cdb.db.ExecContext(context.Background(),
			`ALTER TABLE pages ADD COLUMN text_excerpt TEXT`); err != nil {
			return fmt.Errorf("failed to add text_excerpt column: %w", err)
		}
	}
	return nil
}

func (cdb *CrawlDB) hasColumn(table, column string) (bool, error) {
	var n int
	err := cdb.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	return n > 0, nil
}

// currentRun returns the ID of the run started by StartRun, or "".
func (cdb *CrawlDB) currentRun() string {
	cdb.mu.Lock()
	defer cdb.mu.Unlock()
	return cdb.runID
}

// Run is one invocation of the crawl command.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Seeds      int       `json:"seeds"`
	Pages      int       `json:"pages"`
}

// StartRun records a new crawl run and tags subsequent rows with its ID.
func (cdb *CrawlDB) StartRun(ctx context.Context, seeds int) (string, error) {
	id := uuid.NewString()

	_, err := cdb.db.ExecContext(ctx,
		`INSERT INTO crawl_runs (id, started_at, seeds) VALUES (?, ?, ?)`,
		id, formatTimestamp(time.Now()), seeds,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	cdb.mu.Lock()
	cdb.runID = id
	cdb.mu.Unlock()
	return id, nil
}

// FinishRun marks the run finished and stores the number of pages it saved.
func (cdb *CrawlDB) FinishRun(ctx context.Context, id string) error {
	_, err := cdb.db.ExecContext(ctx, `
	UPDATE crawl_runs
	SET finished_at = ?, pages = (SELECT COUNT(*) FROM pages WHERE run_id = ?)
	WHERE id = ?
	`, formatTimestamp(time.Now()), id, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run, or nil if none exists.
func (cdb *CrawlDB) LastRun(ctx context.Context) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	err := cdb.db.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, seeds, pages
	FROM crawl_runs
	ORDER BY started_at DESC
	LIMIT 1
	`).Scan(&run.ID, &started, &finished, &run.Seeds, &run.Pages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	run.StartedAt = parseTimestamp(started)
	if finished.Valid {
		run.FinishedAt = parseTimestamp(finished.String)
	}
	return &run, nil
}

// Counts summarizes the database contents.
type Counts struct {
	Seen         int64 `json:"seen"`
	Pending      int64 `json:"pending"`
	Done         int64 `json:"done"`
	Dead         int64 `json:"dead"`
	Pages        int64 `json:"pages"`
	Links        int64 `json:"links"`
	Correlations int64 `json:"correlations"`
	Runs         int64 `json:"runs"`
}

// Counts returns row counts across the tables.
func (cdb *CrawlDB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := cdb.db.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM seen_addresses),
		(SELECT COUNT(*) FROM seen_addresses WHERE status = 'pending'),
		(SELECT COUNT(*) FROM seen_addresses WHERE status = 'done'),
		(SELECT COUNT(*) FROM dead_letters),
		(SELECT COUNT(*) FROM pages),
		(SELECT COUNT(*) FROM page_links),
		(SELECT COUNT(*) FROM correlations),
		(SELECT COUNT(*) FROM crawl_runs)
	`).Scan(&c.Seen, &c.Pending, &c.Done, &c.Dead, &c.Pages, &c.Links, &c.Correlations, &c.Runs)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// NetworkHealth is the per-network crawl summary.
type NetworkHealth struct {
	Network      string `json:"network"`
	Seen         int64  `json:"seen"`
	Pending      int64  `json:"pending"`
	Pages        int64  `json:"pages"`
	Dead         int64  `json:"dead"`
	Domains      int64  `json:"domains"`
	Correlations int64  `json:"correlations"`
}

// NetworkHealth returns a summary row for every network with at least one
// seen address, ordered by network name.
func (cdb *CrawlDB) NetworkHealth(ctx context.Context) ([]NetworkHealth, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT
		s.network,
		COUNT(*),
		SUM(CASE WHEN s.status = 'pending' THEN 1 ELSE 0 END),
		(SELECT COUNT(*) FROM pages p WHERE p.network = s.network),
		(SELECT COUNT(*) FROM dead_letters d WHERE d.network = s.network),
		COUNT(DISTINCT s.domain),
		(SELECT COUNT(*) FROM correlations c
			WHERE c.domain IN (SELECT domain FROM seen_addresses WHERE network = s.network))
	FROM seen_addresses s
	GROUP BY s.network
	ORDER BY s.network
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query network health: %w", err)
	}
	defer rows.Close()

	var results []NetworkHealth
	for rows.Next() {
		var h NetworkHealth
		if err := rows.Scan(&h.Network, &h.Seen, &h.Pending, &h.Pages, &h.Dead, &h.Domains, &h.Correlations); err != nil {
			return nil, fmt.Errorf("failed to scan network health: %w", err)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// timestampLayout is the fixed-width layout timestamps are written in, so
// they sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
