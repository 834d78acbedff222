package gen

import "errors"

var (
	// ErrProviderUnavailable means the generation call itself could not
	// complete: network failure, timeout, rate limit, or 5xx. Retriable
	// with backoff.
	ErrProviderUnavailable = errors.New("generation provider unavailable")
	// ErrMalformedResponse means the backend answered but its output is
	// unusable: missing fields, empty suggestion list, bad structure.
	// Retrying the identical request is pointless.
	ErrMalformedResponse = errors.New("generation provider returned malformed response")
)
