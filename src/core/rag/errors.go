package rag

import (
	"errors"
)

var (
	// ErrTransient marks provider failures (network, rate limit) that the
	// orchestrator may retry with backoff.
	ErrTransient = errors.New("transient provider error")

	// ErrMalformedResponse marks provider output that could not be parsed.
	// The keyword extractor absorbs it; the generator fails the query on it.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrConfiguration marks startup-time misconfiguration such as an
	// embedding dimension mismatch or a missing collection. Fatal, never
	// retried per query.
	ErrConfiguration = errors.New("configuration error")
)

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	return errors.Join(ErrTransient, err)
}

// IsTransient reports whether err is retryable at the orchestrator boundary.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
