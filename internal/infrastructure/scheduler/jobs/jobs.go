// Package jobs holds the periodic jobs run by the scheduler.
package jobs

import (
	"context"

	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION SWEEP
// ══════════════════════════════════════════════════════════════════════════════

// Sweeper drops expired sessions. session.MemoryStore implements it.
type Sweeper interface {
	Sweep() int
}

// SweepSessionsJob frees expired in-memory sessions. Redis expires its own.
type SweepSessionsJob struct {
	store Sweeper
	log   *logger.Logger
}

// NewSweepSessionsJob creates the job.
func NewSweepSessionsJob(store Sweeper, log *logger.Logger) *SweepSessionsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &SweepSessionsJob{store: store, log: log.With(logger.Component("session_sweeper"))}
}

func (j *SweepSessionsJob) Name() string { return "sweep_sessions" }

func (j *SweepSessionsJob) Run(_ context.Context) error {
	if n := j.store.Sweep(); n > 0 {
		j.log.Debug("expired sessions dropped", logger.Int("count", n))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USAGE REPORT
// ══════════════════════════════════════════════════════════════════════════════

// UsageLister lists the usage records of a period.
type UsageLister interface {
	Records(ctx context.Context, period string) ([]usage.Record, error)
}

// UsageReportJob logs the month to date totals and the students at or over
// the limit.
type UsageReportJob struct {
	records UsageLister
	limit   int64
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewUsageReportJob creates the job.
func NewUsageReportJob(records UsageLister, limit int64, clock timeutil.Clock, log *logger.Logger) *UsageReportJob {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UsageReportJob{records: records, limit: limit, clock: clock, log: log.With(logger.Component("usage_report"))}
}

func (j *UsageReportJob) Name() string { return "usage_report" }

func (j *UsageReportJob) Run(ctx context.Context) error {
	period := timeutil.Period(j.clock.Now())
	recs, err := j.records.Records(ctx, period)
	if err != nil {
		return err
	}

	st := Summarize(recs, j.limit)
	j.log.Info("usage report",
		logger.Period(period),
		logger.Int("students", st.Students),
		logger.Int64("messages", st.Messages),
		logger.Strings("at_limit", st.AtLimit),
	)
	return nil
}

// UsageStats aggregates the records of one period.
type UsageStats struct {
	Students int
	Messages int64
	// AtLimit lists the students whose count reached the limit.
	AtLimit []string
}

// Summarize aggregates recs against limit.
func Summarize(recs []usage.Record, limit int64) UsageStats {
	st := UsageStats{Students: len(recs)}
	for _, r := range recs {
		st.Messages += r.Count
		if r.Count >= limit {
			st.AtLimit = append(st.AtLimit, r.Email)
		}
	}
	return st
}
