package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

const (
	// failedRateThreshold is the rolling success rate at or below which a
	// failing source is marked failed rather than degraded.
	failedRateThreshold = 50.0

	// degradedRetryWait gates attempts against a degraded source.
	degradedRetryWait = 2 * time.Hour

	// stalenessOverride forces an attempt regardless of status once this much
	// time has passed since the last attempt.
	stalenessOverride = 24 * time.Hour

	// maxBackoffHours caps the exponential backoff for failed sources.
	maxBackoffHours = 24
)

// HealthTracker records fetch outcomes per upstream source and gates retries.
// It is advisory: the price cycle always runs, the history cycle consults
// ShouldAttempt before doing expensive backfill work.
type HealthTracker struct {
	store domain.SourceHealthStore
	now   func() time.Time
}

// NewHealthTracker creates a HealthTracker over the given store.
func NewHealthTracker(store domain.SourceHealthStore) *HealthTracker {
	return &HealthTracker{store: store, now: time.Now}
}

// Record registers the outcome of one fetch attempt. The health row is
// created lazily on the first attempt; counters only grow. On success the
// status resets to healthy and the average response time updates via running
// mean; on failure the status becomes failed when the rolling success rate
// drops to 50% or below, degraded otherwise.
func (t *HealthTracker) Record(ctx context.Context, source domain.Source, success bool, duration time.Duration, errText string) error {
	h, err := t.store.Get(ctx, source)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("record health for %s: %w", source, err)
		}
		h = domain.SourceHealth{Source: source}
	}

	now := t.now().UTC()
	h.LastAttempt = now
	h.TotalAttempts++

	if success {
		h.SuccessCount++
		h.LastSuccess = &now
		h.LastError = ""
		h.Status = domain.HealthHealthy
		ms := float64(duration.Milliseconds())
		h.AvgResponseMs += (ms - h.AvgResponseMs) / float64(h.SuccessCount)
	} else {
		h.LastError = errText
	}

	h.SuccessRate = float64(h.SuccessCount) / float64(h.TotalAttempts) * 100

	if !success {
		if h.SuccessRate <= failedRateThreshold {
			h.Status = domain.HealthFailed
		} else {
			h.Status = domain.HealthDegraded
		}
	}

	if err := t.store.Upsert(ctx, h); err != nil {
		return fmt.Errorf("record health for %s: %w", source, err)
	}
	return nil
}

// ShouldAttempt reports whether a fetch against the source is currently
// permitted. A source that has never been attempted, or not attempted in over
// 24 hours, is always permitted. Failed sources back off exponentially with
// hours since the last success, capped at 24 hours; degraded sources are
// limited to one attempt every two hours.
func (t *HealthTracker) ShouldAttempt(ctx context.Context, source domain.Source) (bool, error) {
	h, err := t.store.Get(ctx, source)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("health gate for %s: %w", source, err)
	}

	now := t.now().UTC()
	sinceAttempt := now.Sub(h.LastAttempt)
	if sinceAttempt > stalenessOverride {
		return true, nil
	}

	switch h.Status {
	case domain.HealthFailed:
		wait := time.Duration(backoffHours(now, h.LastSuccess)) * time.Hour
		return sinceAttempt >= wait, nil
	case domain.HealthDegraded:
		return sinceAttempt >= degradedRetryWait, nil
	default:
		return true, nil
	}
}

// backoffHours computes the wait, in hours, before a failed source may be
// retried. The wait doubles for each full day since the last success, capped
// at 24 hours; a source that never succeeded gets the full cap (the staleness
// override still guarantees a daily attempt).
func backoffHours(now time.Time, lastSuccess *time.Time) int {
	if lastSuccess == nil {
		return maxBackoffHours
	}
	days := int(now.Sub(*lastSuccess).Hours()) / 24
	if days < 1 {
		return 1
	}
	wait := 1 << (days - 1)
	if wait > maxBackoffHours {
		return maxBackoffHours
	}
	return wait
}
