package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

const (
	reportLogKey  = "syncd:reports"
	reportLastKey = "syncd:reports:last"

	// reportRetention bounds the rolling log; entries older than this are
	// evicted on every append.
	reportRetention = 24 * time.Hour
)

// ReportLog implements domain.ReportLog using a Redis sorted set scored by
// report timestamp (unix milliseconds) plus a per-cycle "last report" hash.
type ReportLog struct {
	rdb *redis.Client
}

// NewReportLog creates a ReportLog backed by the given Client.
func NewReportLog(c *Client) *ReportLog {
	return &ReportLog{rdb: c.rdb}
}

// Append stores the report, refreshes the per-cycle snapshot, and evicts
// entries older than the retention window.
func (l *ReportLog) Append(ctx context.Context, r domain.UpdateReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal report %s: %w", r.ID, err)
	}

	score := float64(r.Timestamp.UnixMilli())
	cutoff := r.Timestamp.Add(-reportRetention).UnixMilli()

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, reportLogKey, redis.Z{Score: score, Member: string(data)})
	pipe.ZRemRangeByScore(ctx, reportLogKey, "-inf", fmt.Sprintf("(%d", cutoff))
	pipe.HSet(ctx, reportLastKey, string(r.Cycle), string(data))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append report %s: %w", r.ID, err)
	}
	return nil
}

// Last returns the most recent report for a cycle, or domain.ErrNotFound.
func (l *ReportLog) Last(ctx context.Context, cycle domain.Cycle) (domain.UpdateReport, error) {
	data, err := l.rdb.HGet(ctx, reportLastKey, string(cycle)).Result()
	if err != nil {
		if err == redis.Nil {
			return domain.UpdateReport{}, domain.ErrNotFound
		}
		return domain.UpdateReport{}, fmt.Errorf("redis: last report %s: %w", cycle, err)
	}

	var r domain.UpdateReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return domain.UpdateReport{}, fmt.Errorf("redis: decode last report %s: %w", cycle, err)
	}
	return r, nil
}

// Window returns reports from the last d, oldest first. The window is capped
// at the retention period since older entries are already evicted.
func (l *ReportLog) Window(ctx context.Context, d time.Duration) ([]domain.UpdateReport, error) {
	if d <= 0 || d > reportRetention {
		d = reportRetention
	}
	from := time.Now().Add(-d).UnixMilli()

	members, err := l.rdb.ZRangeByScore(ctx, reportLogKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: report window: %w", err)
	}

	reports := make([]domain.UpdateReport, 0, len(members))
	for _, m := range members {
		var r domain.UpdateReport
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Compile-time interface check.
var _ domain.ReportLog = (*ReportLog)(nil)
