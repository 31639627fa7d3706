package domain

import "time"

// Market is a tracked prediction with a current probability estimate.
// Probability and PreviousProbability are integer percentages in [0,100].
type Market struct {
	ID                  int64
	Question            string
	Source              Source
	ExternalRef         string // upstream slug or URL used for lookups
	ExternalID          string // canonical upstream identifier, filled on first resolve
	Probability         int
	PreviousProbability int
	LastUpdated         time.Time
	Active              bool
	CreatedAt           time.Time
}

// HistoryPoint is one timestamped probability observation for a market.
// TimestampMs is epoch milliseconds; Probability is an integer percentage.
// At most one point per (market, timestamp_ms) is ever stored.
type HistoryPoint struct {
	ID          int64
	MarketID    int64
	TimestampMs int64
	Probability int
	Source      Source
}

// Quote is the result of resolving a market's current price upstream.
// Probability is the raw upstream fraction in [0,1].
type Quote struct {
	ExternalID  string
	Probability float64
	FetchedAt   time.Time
}

// RawPoint is one sample from an upstream historical series, in upstream
// units: T is epoch seconds, P is a probability fraction in [0,1].
type RawPoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}
