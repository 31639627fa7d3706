package domain

import "time"

// Cycle names the two orchestrator update cycles.
type Cycle string

const (
	CyclePrices  Cycle = "prices"
	CycleHistory Cycle = "history"
)

// UpdateReport aggregates the outcome of one orchestrator run. It is
// ephemeral: produced per cycle, appended to the rolling report log, and
// discarded.
//
// Critical marks the bulk-replace hazard: a persistence failure after history
// deletion left a market with partial history and no automatic compensation.
type UpdateReport struct {
	ID        string        `json:"id"`
	Cycle     Cycle         `json:"cycle"`
	Success   bool          `json:"success"`
	Critical  bool          `json:"critical"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// UpdateLogEntry records one persisted significant probability change,
// feeding the dashboard's recent-movement view.
type UpdateLogEntry struct {
	ID             int64
	MarketID       int64
	OldProbability int
	NewProbability int
	Source         Source
	CreatedAt      time.Time
}
