package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/darkcrawl/internal/model"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Link is an outgoing edge of a saved page.
type Link struct {
	To     string
	Method model.DiscoveryMethod
}

// PageRecord is everything persisted for one fetched page.
type PageRecord struct {
	Candidate model.Candidate
	Page      *model.PageResult
	Links     []Link
	Facts     []model.CorrelationFact

	// Discovered are the candidates the frontier admitted from this page.
	// Their pending queue rows are written with the page.
	Discovered []model.Candidate
}

// SavePage stores the page row, its links, its correlation facts and the
// queue rows of the candidates it discovered, and marks the candidate done,
// in one transaction. Either all of it is stored or none of it.
func (cdb *CrawlDB) SavePage(ctx context.Context, rec *PageRecord) error {
	if rec.Page == nil {
		return errors.New("page record has no page")
	}
	page := rec.Page

	headersJSON, err := json.Marshal(page.Headers)
	if err != nil {
		return fmt.Errorf("failed to serialize headers: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	_, err = tx.ExecContext(ctx, `
	INSERT INTO pages
		(url, final_url, network, domain, status_code, content_type, title, text_excerpt,
		 body_hash, headers, header_order, fetched_at, elapsed_ms, depth, method, run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		final_url = excluded.final_url,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		title = excluded.title,
		text_excerpt = excluded.text_excerpt,
		body_hash = excluded.body_hash,
		headers = excluded.headers,
		header_order = excluded.header_order,
		fetched_at = excluded.fetched_at,
		elapsed_ms = excluded.elapsed_ms,
		run_id = excluded.run_id
	`,
		page.Address,
		page.FinalAddress,
		page.Network.String(),
		page.Domain,
		page.StatusCode,
		page.ContentType,
		page.Title,
		page.Text,
		page.Hash(),
		string(headersJSON),
		strings.Join(page.HeaderOrder, ","),
		formatTimestamp(page.FetchedAt),
		page.Elapsed.Milliseconds(),
		rec.Candidate.Depth,
		rec.Candidate.Method.String(),
		cdb.currentRun(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}

	for _, link := range rec.Links {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO page_links (from_url, to_url, method) VALUES (?, ?, ?)
		ON CONFLICT(from_url, to_url) DO NOTHING
		`, page.Address, link.To, link.Method.String()); err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
	}

	if _, err := insertFacts(ctx, tx, rec.Facts); err != nil {
		return err
	}

	run := cdb.currentRun()
	for _, c := range rec.Discovered {
		if _, err := insertCandidate(ctx, tx, c, run); err != nil {
			return err
		}
	}

	// The row is missing when the page that discovered the candidate could
	// not be saved.
	if rec.Candidate.CanonicalAddress != "" {
		if _, err := insertCandidate(ctx, tx, rec.Candidate, run); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE seen_addresses SET status = ? WHERE canonical_address = ? AND status = ?`,
		statusDone, rec.Candidate.CanonicalAddress, statusPending,
	); err != nil {
		return fmt.Errorf("failed to mark address done: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page: %w", err)
	}
	return nil
}

// StoredPage is a page row read back from the database.
type StoredPage struct {
	URL         string
	FinalURL    string
	Network     string
	Domain      string
	StatusCode  int
	ContentType string
	Title       string
	TextExcerpt string
	BodyHash    string
	Headers     map[string][]string
	HeaderOrder []string
	FetchedAt   time.Time
	Elapsed     time.Duration
	Depth       int
	Method      string
	RunID       string
}

// GetPage retrieves a page by its canonical URL, or nil if it was never saved.
func (cdb *CrawlDB) GetPage(ctx context.Context, url string) (*StoredPage, error) {
	query := `
	SELECT url, final_url, network, domain, status_code, content_type, title, text_excerpt,
		body_hash, headers, header_order, fetched_at, elapsed_ms, depth, method, run_id
	FROM pages
	WHERE url = ?
	`

	var (
		p                                  StoredPage
		finalURL, contentType, title, hash sql.NullString
		text                               sql.NullString
		headersJSON, order, fetched, runID sql.NullString
		method                             sql.NullString
		elapsedMS                          int64
	)
	err := cdb.db.QueryRowContext(ctx, query, url).Scan(
		&p.URL, &finalURL, &p.Network, &p.Domain, &p.StatusCode, &contentType, &title, &text, &hash,
		&headersJSON, &order, &fetched, &elapsedMS, &p.Depth, &method, &runID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	p.FinalURL = finalURL.String
	p.ContentType = contentType.String
	p.Title = title.String
	p.TextExcerpt = text.String
	p.BodyHash = hash.String
	p.Method = method.String
	p.RunID = runID.String
	p.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	p.FetchedAt = parseTimestamp(fetched.String)
	if order.String != "" {
		p.HeaderOrder = strings.Split(order.String, ",")
	}
	if headersJSON.String != "" && headersJSON.String != "null" {
		if err := json.Unmarshal([]byte(headersJSON.String), &p.Headers); err != nil {
			return nil, fmt.Errorf("failed to parse headers: %w", err)
		}
	}
	return &p, nil
}

// LinksFrom returns the outgoing links of a saved page.
func (cdb *CrawlDB) LinksFrom(ctx context.Context, url string) ([]string, error) {
	return cdb.queryStrings(ctx, `SELECT to_url FROM page_links WHERE from_url = ? ORDER BY id`, url)
}

// RecordCorrelations inserts facts, ignoring ones already stored. It returns
// the number of new facts.
func (cdb *CrawlDB) RecordCorrelations(ctx context.Context, facts []model.CorrelationFact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	n, err := insertFacts(ctx, tx, facts)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit correlations: %w", err)
	}
	return n, nil
}

func insertFacts(ctx context.Context, ex execer, facts []model.CorrelationFact) (int64, error) {
	now := formatTimestamp(time.Now())
	var inserted int64
	for _, f := range facts {
		result, err := ex.ExecContext(ctx, `
		INSERT INTO correlations (domain, correlation_type, value, first_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain, correlation_type, value) DO NOTHING
		`, f.Domain, string(f.Type), f.Value, now)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert correlation: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to check inserted rows: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// SharedCorrelations returns the domains exhibiting the (type, value) fact,
// sorted.
func (cdb *CrawlDB) SharedCorrelations(ctx context.Context, typ model.CorrelationType, value string) ([]string, error) {
	return cdb.queryStrings(ctx, `
	SELECT domain FROM correlations
	WHERE correlation_type = ? AND value = ?
	ORDER BY domain
	`, string(typ), value)
}

// SharedFact is a fact of one domain that another domain shares.
type SharedFact struct {
	Domain string                `json:"domain"`
	Type   model.CorrelationType `json:"type"`
	Value  string                `json:"value"`
}

// DomainsSharing returns every fact of domain that some other domain also
// exhibits, one row per other domain and fact.
func (cdb *CrawlDB) DomainsSharing(ctx context.Context, domain string) ([]SharedFact, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT b.domain, a.correlation_type, a.value
	FROM correlations a
	JOIN correlations b
		ON a.correlation_type = b.correlation_type
		AND a.value = b.value
		AND a.domain <> b.domain
	WHERE a.domain = ?
	ORDER BY a.correlation_type, b.domain
	`, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared facts: %w", err)
	}
	defer rows.Close()

	var results []SharedFact
	for rows.Next() {
		var (
			f   SharedFact
			typ string
		)
		if err := rows.Scan(&f.Domain, &typ, &f.Value); err != nil {
			return nil, fmt.Errorf("failed to scan shared fact: %w", err)
		}
		f.Type = model.CorrelationType(typ)
		results = append(results, f)
	}
	return results, rows.Err()
}

// Cluster is a fact exhibited by more than one domain.
type Cluster struct {
	Type    model.CorrelationType `json:"type"`
	Value   string                `json:"value"`
	Domains []string              `json:"domains"`
}

// Clusters returns facts shared by at least two domains, largest first.
// An empty typ matches every type. Limit <= 0 means no limit.
func (cdb *CrawlDB) Clusters(ctx context.Context, typ model.CorrelationType, limit int) ([]Cluster, error) {
	query := `
	SELECT correlation_type, value, GROUP_CONCAT(domain, char(10))
	FROM (SELECT correlation_type, value, domain FROM correlations ORDER BY domain)
	WHERE 1=1
	`
	args := make([]interface{}, 0)
	if typ != "" {
		query += " AND correlation_type = ?"
		args = append(args, string(typ))
	}
	query += " GROUP BY correlation_type, value HAVING COUNT(*) > 1 ORDER BY COUNT(*) DESC, correlation_type, value"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var results []Cluster
	for rows.Next() {
		var (
			c       Cluster
			typName string
			domains string
		)
		if err := rows.Scan(&typName, &c.Value, &domains); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		c.Type = model.CorrelationType(typName)
		c.Domains = strings.Split(domains, "\n")
		results = append(results, c)
	}
	return results, rows.Err()
}
