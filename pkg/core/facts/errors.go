package facts

import "errors"

var (
	// ErrUnknownEntity means the ticker could not be mapped to a company.
	ErrUnknownEntity = errors.New("facts: unknown entity")

	// ErrUnknownConcept means the concept has no taxonomy mapping.
	ErrUnknownConcept = errors.New("facts: unknown concept")

	// ErrUpstreamUnavailable wraps fetch failures that survived retries.
	ErrUpstreamUnavailable = errors.New("facts: upstream unavailable")

	// ErrNotFound means no entry matched the period after fallback.
	// Callers decide whether the input was required.
	ErrNotFound = errors.New("facts: not found")

	// ErrInvalidPeriod is returned for malformed period or frequency values.
	ErrInvalidPeriod = errors.New("facts: invalid period")
)
