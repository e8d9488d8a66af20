package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when CreateIfNotExists is false
	// and no database file exists.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrEmptyAddress is returned when a row is written without a canonical
	// address.
	ErrEmptyAddress = errors.New("canonical address is empty")

	// ErrEmptyQuery is returned by SearchPages for a blank query.
	ErrEmptyQuery = errors.New("search query is empty")
)
