package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DefaultSearchLimit is used when SearchPages is given no positive limit.
const DefaultSearchLimit = 20

// snippetLength is the length of the excerpt prefix returned with a hit.
const snippetLength = 200

// PageHit is a saved page matching a text search.
type PageHit struct {
	URL       string    `json:"url"`
	Network   string    `json:"network"`
	Domain    string    `json:"domain"`
	Title     string    `json:"title,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SearchPages returns the pages whose title or text excerpt contains query,
// newest first. Matching ignores ASCII case, and the LIKE wildcards % and _
// in query match literally.
func (cdb *CrawlDB) SearchPages(ctx context.Context, query string, limit int) ([]PageHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + escapeLike(query) + "%"

	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, network, domain, title, substr(COALESCE(text_excerpt, ''), 1, ?), fetched_at
	FROM pages
	WHERE title LIKE ? ESCAPE '\' OR text_excerpt LIKE ? ESCAPE '\'
	ORDER BY fetched_at DESC, id DESC
	LIMIT ?
	`, snippetLength, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search pages: %w", err)
	}
	defer rows.Close()

	var results []PageHit
	for rows.Next() {
		var (
			h              PageHit
			title, fetched sql.NullString
		)
		if err := rows.Scan(&h.URL, &h.Network, &h.Domain, &title, &h.Snippet, &fetched); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		h.Title = title.String
		if fetched.Valid {
			h.FetchedAt = parseTimestamp(fetched.String)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
