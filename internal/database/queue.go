package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/darkcrawl/internal/model"
)

// Row status values of seen_addresses.
const (
	statusPending = "pending"
	statusDone    = "done"
	statusDead    = "dead"
)

// TryInsertUnique records c as seen. It returns true if the canonical address
// was not stored before, false if it already was.
//
// Seeds are stored this way. Discovered candidates are stored by SavePage
// together with the page that found them.
func (cdb *CrawlDB) TryInsertUnique(ctx context.Context, c model.Candidate) (bool, error) {
	return insertCandidate(ctx, cdb.db, c, cdb.currentRun())
}

// IsSeen reports whether canonical was ever stored. It is the exact
// membership check behind the bloom filter of the dedup index.
func (cdb *CrawlDB) IsSeen(ctx context.Context, canonical string) (bool, error) {
	var one int
	err := cdb.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_addresses WHERE canonical_address = ?`, canonical,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up seen address: %w", err)
	}
	return true, nil
}

// insertCandidate inserts the pending queue row of c unless its canonical
// address is already stored.
func insertCandidate(ctx context.Context, ex execer, c model.Candidate, runID string) (bool, error) {
	if c.CanonicalAddress == "" {
		return false, ErrEmptyAddress
	}

	result, err := ex.ExecContext(ctx, `
	INSERT INTO seen_addresses
		(canonical_address, raw_address, network, domain, depth, source_address,
		 tier, method, priority, retry_count, status, first_seen_at, run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(canonical_address) DO NOTHING
	`,
		c.CanonicalAddress,
		c.RawAddress,
		c.Network.String(),
		c.Domain,
		c.Depth,
		c.SourceAddress,
		int(c.Tier),
		c.Method.String(),
		c.Priority,
		c.RetryCount,
		statusPending,
		formatTimestamp(time.Now()),
		runID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert seen address: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check inserted rows: %w", err)
	}
	return n == 1, nil
}

// MarkRetry stores the retry count of a requeued candidate so a restart
// resumes the count instead of starting over.
func (cdb *CrawlDB) MarkRetry(ctx context.Context, canonical string, retryCount int) error {
	_, err := cdb.db.ExecContext(ctx,
		`UPDATE seen_addresses SET retry_count = ? WHERE canonical_address = ?`,
		retryCount, canonical,
	)
	if err != nil {
		return fmt.Errorf("failed to update retry count: %w", err)
	}
	return nil
}

// MarkDone marks a candidate fetched without saving a page. SavePage marks
// the candidate done itself.
func (cdb *CrawlDB) MarkDone(ctx context.Context, canonical string) error {
	_, err := cdb.db.ExecContext(ctx,
		`UPDATE seen_addresses SET status = ? WHERE canonical_address = ? AND status = ?`,
		statusDone, canonical, statusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark address done: %w", err)
	}
	return nil
}

// LoadSeen returns every canonical address ever admitted.
func (cdb *CrawlDB) LoadSeen(ctx context.Context) ([]string, error) {
	return cdb.queryStrings(ctx, `SELECT canonical_address FROM seen_addresses ORDER BY id`)
}

// LoadDead returns the canonical addresses of every dead letter.
func (cdb *CrawlDB) LoadDead(ctx context.Context) ([]string, error) {
	return cdb.queryStrings(ctx, `SELECT canonical_address FROM dead_letters ORDER BY id`)
}

// LoadPending returns the candidates that were admitted but never finished,
// in admission order. Candidates in flight when the previous run stopped are
// pending too.
func (cdb *CrawlDB) LoadPending(ctx context.Context) ([]model.Candidate, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT canonical_address, raw_address, network, domain, depth, source_address,
		tier, method, priority, retry_count
	FROM seen_addresses
	WHERE status = ?
	ORDER BY id
	`, statusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending addresses: %w", err)
	}
	defer rows.Close()

	var results []model.Candidate
	for rows.Next() {
		var (
			c                   model.Candidate
			raw, source         sql.NullString
			networkName, method string
			tier                int
		)
		if err := rows.Scan(&c.CanonicalAddress, &raw, &networkName, &c.Domain, &c.Depth, &source,
			&tier, &method, &c.Priority, &c.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan pending address: %w", err)
		}

		network, err := model.ParseNetwork(networkName)
		if err != nil {
			return nil, fmt.Errorf("pending address %s: %w", c.CanonicalAddress, err)
		}
		m, err := model.ParseDiscoveryMethod(method)
		if err != nil {
			return nil, fmt.Errorf("pending address %s: %w", c.CanonicalAddress, err)
		}

		c.Network = network
		c.Method = m
		c.Tier = model.Tier(tier)
		c.RawAddress = raw.String
		c.SourceAddress = source.String
		c.Status = model.StatusPending
		results = append(results, c)
	}
	return results, rows.Err()
}

// RecordDead writes the dead letter of a candidate and marks its seen row
// dead. A second call for the same address is a no-op: every address has at
// most one dead letter. It reports whether the entry was written.
func (cdb *CrawlDB) RecordDead(ctx context.Context, entry model.DeadEntry) (bool, error) {
	if entry.CanonicalAddress == "" {
		return false, ErrEmptyAddress
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	attempt := entry.LastAttemptAt
	if attempt.IsZero() {
		attempt = time.Now()
	}

	result, err := tx.ExecContext(ctx, `
	INSERT INTO dead_letters
		(canonical_address, network, domain, reason, retry_count, last_error, last_attempt_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(canonical_address) DO NOTHING
	`,
		entry.CanonicalAddress,
		entry.Network.String(),
		entry.Domain,
		string(entry.Reason),
		entry.RetryCount,
		entry.LastError,
		formatTimestamp(attempt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert dead letter: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check inserted rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE seen_addresses SET status = ?, retry_count = ? WHERE canonical_address = ?`,
		statusDead, entry.RetryCount, entry.CanonicalAddress,
	); err != nil {
		return false, fmt.Errorf("failed to mark address dead: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit dead letter: %w", err)
	}
	return n == 1, nil
}

// ClearDead deletes the dead letters of a network and returns their
// addresses to pending with a fresh retry budget. It returns the number of
// dead letters removed.
func (cdb *CrawlDB) ClearDead(ctx context.Context, network model.Network) (int64, error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `
	UPDATE seen_addresses SET status = ?, retry_count = 0
	WHERE canonical_address IN (SELECT canonical_address FROM dead_letters WHERE network = ?)
	`, statusPending, network.String()); err != nil {
		return 0, fmt.Errorf("failed to reset dead addresses: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM dead_letters WHERE network = ?`, network.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete dead letters: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check deleted rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return n, nil
}

// DeadFilter narrows ListDead. Zero values match everything.
type DeadFilter struct {
	Network *model.Network
	Reason  model.DeadReason
	Limit   int
}

// ListDead returns dead letters, newest attempt first.
func (cdb *CrawlDB) ListDead(ctx context.Context, filter DeadFilter) ([]model.DeadEntry, error) {
	query := `
	SELECT canonical_address, network, domain, reason, retry_count, last_error, last_attempt_at
	FROM dead_letters
	WHERE 1=1
	`
	args := make([]interface{}, 0)

	if filter.Network != nil {
		query += " AND network = ?"
		args = append(args, filter.Network.String())
	}
	if filter.Reason != "" {
		query += " AND reason = ?"
		args = append(args, string(filter.Reason))
	}
	query += " ORDER BY last_attempt_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var results []model.DeadEntry
	for rows.Next() {
		var (
			e           model.DeadEntry
			networkName string
			reason      string
			lastError   sql.NullString
			attempt     sql.NullString
		)
		if err := rows.Scan(&e.CanonicalAddress, &networkName, &e.Domain, &reason,
			&e.RetryCount, &lastError, &attempt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		network, err := model.ParseNetwork(networkName)
		if err != nil {
			return nil, fmt.Errorf("dead letter %s: %w", e.CanonicalAddress, err)
		}
		e.Network = network
		e.Reason = model.DeadReason(reason)
		e.LastError = lastError.String
		if attempt.Valid {
			e.LastAttemptAt = parseTimestamp(attempt.String)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (cdb *CrawlDB) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
