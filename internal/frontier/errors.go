package frontier

import "errors"

var (
	// ErrClosed is returned by Take and Offer after Close.
	ErrClosed = errors.New("frontier closed")

	// ErrNotSchedulable is returned for a network that has no pool or was
	// disabled.
	ErrNotSchedulable = errors.New("network is not schedulable")
)
