package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrMarketNotFound    = errors.New("no market found")
	ErrNoHistoryToken    = errors.New("no history token found")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRateLimited       = errors.New("rate limited")
	ErrBackoff           = errors.New("source in backoff")
	// ErrPartialHistory marks a bulk replace that failed after deletion,
	// leaving a market with incomplete history.
	ErrPartialHistory = errors.New("history partially replaced")
)
