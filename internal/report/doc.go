// Package report renders the crawl database for operators.
//
// Three formats are supported:
//   - SimpleWriter: fixed-width text for the terminal
//   - MarkdownWriter: tables and a mermaid chart for sharing
//   - JSONWriter: structured output for scripts
//
// Every writer renders the same three views: Status (totals and per-network
// health), DeadLetters and Correlations. The cmd package queries the
// database and hands the result to a Writer chosen with NewWriter.
package report
