package domain

import "time"

// HealthStatus is the computed state of an upstream source.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailed   HealthStatus = "failed"
)

// SourceHealth tracks fetch outcomes for one external source. Rows are
// created lazily on first attempt and never deleted; counters only grow.
type SourceHealth struct {
	Source        Source
	LastAttempt   time.Time
	LastSuccess   *time.Time
	LastError     string
	SuccessRate   float64 // rolling, 0-100
	TotalAttempts int64
	SuccessCount  int64
	AvgResponseMs float64
	Status        HealthStatus
}
