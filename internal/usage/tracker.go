package usage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	dailyWindowDays = 7
	topToolsLimit   = 5
)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Stats struct {
	QueriesTotal           int         `json:"queries_total"`
	QueriesToday           int         `json:"queries_today"`
	ToolsUsedDistinctCount int         `json:"tools_used_distinct_count"`
	SuccessRatePercent     int         `json:"success_rate_percent"`
	DailyUsage             []DayCount  `json:"daily_usage"`
	TopTools               []ToolCount `json:"top_tools"`
}

// incrIfExists bumps the cached daily counter only when the key is already
// populated; a blind INCR on a cold key would undercount against the store.
var incrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("INCR", KEYS[1])
end
return -1
`)

// Tracker maintains per-user usage history and derives statistics on demand.
// All failures degrade: recording is best-effort once the attempt reached the
// backend, statistics zero out, and today's count fails open to 0.
type Tracker struct {
	store  *Store
	redis  *redis.Client
	logger *zap.SugaredLogger
	now    func() time.Time
}

type NewTrackerParams struct {
	fx.In

	Store  *Store
	Redis  *redis.Client `optional:"true"`
	Logger *zap.SugaredLogger
}

func NewTracker(p NewTrackerParams) *Tracker {
	return &Tracker{
		store:  p.Store,
		redis:  p.Redis,
		logger: p.Logger,
		now:    time.Now,
	}
}

// NewTrackerWithClock is used by tests to pin the day boundary.
func NewTrackerWithClock(store *Store, rdb *redis.Client, logger *zap.SugaredLogger, now func() time.Time) *Tracker {
	return &Tracker{store: store, redis: rdb, logger: logger, now: now}
}

// RecordOutcome appends one terminal invocation. Failed executions count too;
// only attempts that never reached the backend are excluded (the controller
// never calls this for those).
func (t *Tracker) RecordOutcome(ctx context.Context, userID, toolID string, succeeded bool) {
	now := t.now().UTC()
	rec := Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		ToolID:      toolID,
		CreatedAtMS: now.UnixMilli(),
	}
	if succeeded {
		rec.Succeeded = 1
	}

	if err := t.store.Append(ctx, rec); err != nil {
		t.logger.Warnw("usage_record_append_failed", "user_id", userID, "tool_id", toolID, "err", err)
		return
	}

	if t.redis != nil {
		key := dailyCountKey(userID, toolID, now)
		if err := incrIfExists.Run(ctx, t.redis, []string{key}).Err(); err != nil {
			t.logger.Debugw("usage_counter_incr_failed", "key", key, "err", err)
		}
	}
}

// TodayCount returns the user's invocation count for the tool since UTC
// midnight. Redis serves as a read-through cache; the store is the source of
// truth. Errors fail open to 0 so tracking faults never block execution.
func (t *Tracker) TodayCount(ctx context.Context, userID, toolID string) int {
	now := t.now().UTC()
	key := dailyCountKey(userID, toolID, now)

	if t.redis != nil {
		if n, err := t.redis.Get(ctx, key).Int(); err == nil {
			return n
		} else if err != redis.Nil {
			t.logger.Debugw("usage_counter_get_failed", "key", key, "err", err)
		}
	}

	n, err := t.store.CountSince(ctx, userID, toolID, startOfDayUTC(now).UnixMilli())
	if err != nil {
		t.logger.Warnw("usage_today_count_failed", "user_id", userID, "tool_id", toolID, "err", err)
		return 0
	}

	if t.redis != nil {
		ttl := endOfDayUTC(now).Sub(now)
		if err := t.redis.Set(ctx, key, n, ttl).Err(); err != nil {
			t.logger.Debugw("usage_counter_set_failed", "key", key, "err", err)
		}
	}

	return n
}

// StatsFor recomputes the user's statistics from history. Any store failure
// yields zeroed stats rather than an error; statistics are best-effort.
func (t *Tracker) StatsFor(ctx context.Context, userID string) Stats {
	now := t.now().UTC()
	stats := emptyStats(now)

	total, succeeded, distinct, err := t.store.Totals(ctx, userID)
	if err != nil {
		t.logger.Warnw("usage_stats_totals_failed", "user_id", userID, "err", err)
		return stats
	}
	stats.QueriesTotal = total
	stats.ToolsUsedDistinctCount = distinct
	if total > 0 {
		stats.SuccessRatePercent = int(math.Round(float64(succeeded) / float64(total) * 100))
	}

	windowStart := startOfDayUTC(now).AddDate(0, 0, -(dailyWindowDays - 1))
	times, err := t.store.RecordTimesSince(ctx, userID, windowStart.UnixMilli())
	if err != nil {
		t.logger.Warnw("usage_stats_daily_failed", "user_id", userID, "err", err)
		return emptyStats(now)
	}
	for _, ms := range times {
		day := startOfDayUTC(time.UnixMilli(ms).UTC())
		idx := int(day.Sub(windowStart).Hours() / 24)
		if idx >= 0 && idx < dailyWindowDays {
			stats.DailyUsage[idx].Count++
		}
		if !day.Before(startOfDayUTC(now)) {
			stats.QueriesToday++
		}
	}

	top, err := t.store.TopTools(ctx, userID, topToolsLimit)
	if err != nil {
		t.logger.Warnw("usage_stats_top_tools_failed", "user_id", userID, "err", err)
		return emptyStats(now)
	}
	stats.TopTools = top

	return stats
}

func emptyStats(now time.Time) Stats {
	daily := make([]DayCount, dailyWindowDays)
	start := startOfDayUTC(now).AddDate(0, 0, -(dailyWindowDays - 1))
	for i := range daily {
		daily[i] = DayCount{Date: start.AddDate(0, 0, i).Format("2006-01-02")}
	}
	return Stats{DailyUsage: daily, TopTools: []ToolCount{}}
}

// Day boundaries are UTC midnight, uniformly for quota enforcement and stats.
func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDayUTC(t time.Time) time.Time {
	return startOfDayUTC(t).AddDate(0, 0, 1)
}

func dailyCountKey(userID, toolID string, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s", userID, toolID, startOfDayUTC(now).Format("2006-01-02"))
}
