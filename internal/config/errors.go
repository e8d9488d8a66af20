package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// returning the validator's errors directly. This allows callers to use
// errors.Is() for programmatic error handling, and keeps the validator an
// implementation detail of this package.
var (
	// ErrInvalidConfig is returned for a field that fails validation and has
	// no more specific error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownNetwork is returned for a networks entry that is not a
	// known network name.
	ErrUnknownNetwork = errors.New("unknown network in configuration")

	// ErrZeroNetEnabled is returned when ZeroNet is enabled. ZeroNet
	// addresses are classified but never crawled.
	ErrZeroNetEnabled = errors.New("zeronet cannot be enabled: it is classified but never crawled")

	// ErrNoNetworkEnabled is returned when no network would be crawled.
	ErrNoNetworkEnabled = errors.New("no network enabled")

	// ErrInvalidMaxDepth is returned when the depth ceiling is not positive.
	ErrInvalidMaxDepth = errors.New("invalid max_depth: must be positive")

	// ErrInvalidMaxBodySize is returned when the body limit is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max_body_size_mb: must be positive")

	// ErrInvalidBloomFPRate is returned when the false positive rate is not
	// between 0 and 1.
	ErrInvalidBloomFPRate = errors.New("invalid bloom_fp_rate: must be between 0 and 1")

	// ErrInvalidProxy is returned when a proxy is not in "host:port" format.
	ErrInvalidProxy = errors.New("invalid proxy address: expected host:port")

	// ErrInvalidMetricsAddress is returned when the metrics listen address
	// is not in "host:port" format.
	ErrInvalidMetricsAddress = errors.New("invalid metrics listen address: expected host:port")

	// ErrNegativeValue is returned for a count, delay or timeout below zero.
	ErrNegativeValue = errors.New("invalid value: must be non-negative")
)

// validate checks the struct tags of Config.
var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldErrors maps struct fields to their sentinel error.
var fieldErrors = map[string]error{
	"MaxDepth":      ErrInvalidMaxDepth,
	"MaxBodySizeMB": ErrInvalidMaxBodySize,
	"BloomFPRate":   ErrInvalidBloomFPRate,
	"Proxies":       ErrInvalidProxy,
	"Listen":        ErrInvalidMetricsAddress,
}

// validationError converts the first validator failure to a sentinel error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fe := verrs[0]
	field := fe.StructField()
	// Slice elements are reported as "Proxies[0]".
	for name, sentinel := range fieldErrors {
		if field == name || len(field) > len(name) && field[:len(name)+1] == name+"[" {
			return wrapf(sentinel, "%s", fe.Namespace())
		}
	}
	if fe.Tag() == "gte" && fe.Param() == "0" {
		return wrapf(ErrNegativeValue, "%s", fe.Namespace())
	}
	return wrapf(ErrInvalidConfig, "%s failed %q", fe.Namespace(), fe.Tag())
}

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
