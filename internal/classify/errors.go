package classify

import "errors"

// Classification errors.
//
// Design decision: Every classification failure wraps ErrUnknownFormat so
// callers only need one errors.Is check to drop a candidate. The more specific
// sentinels exist for log messages and tests.
var (
	// ErrUnknownFormat is returned for any address the network's rules reject.
	// The caller drops the candidate rather than guessing.
	ErrUnknownFormat = errors.New("unknown address format")

	// ErrUnsupportedScheme is returned for schemes other than http and https
	// (and the hyphanet:/freenet: key schemes on Hyphanet).
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrDeprecatedOnion is returned for v2 onion labels, which stopped
	// working in October 2021.
	ErrDeprecatedOnion = errors.New("v2 onion addresses are no longer functional")
)
