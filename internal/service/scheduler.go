package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/likesync"
	"go.uber.org/zap"
)

// Scheduler triggers the sync once a day at a fixed wall-clock time.
type Scheduler struct {
	job      SyncJob
	at       time.Duration
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
	after    func(d time.Duration) <-chan time.Time
}

// NewScheduler builds a daily scheduler; at is the offset from midnight in
// location (nil means local time).
func NewScheduler(job SyncJob, at time.Duration, location *time.Location, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("sync job is required")
	}
	if at < 0 || at >= 24*time.Hour {
		return nil, fmt.Errorf("schedule offset %s is outside a day", at)
	}
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		job:      job,
		at:       at,
		location: location,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		next := nextDailyRun(s.now().In(s.location), s.at)
		wait := next.Sub(s.now())
		s.logger.Info("next scheduled sync", zap.Time("at", next), zap.Duration("in", wait))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(wait):
			if !s.job.Trigger(likesync.RunParams{EndBatch: -1, BatchSize: -1, Source: "schedule"}) {
				s.logger.Warn("scheduled sync was not started")
			}
		}
	}
}

// nextDailyRun returns the first instant strictly after now that is at past
// midnight in now's location.
func nextDailyRun(now time.Time, at time.Duration) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	next := midnight.Add(at)
	if !next.After(now) {
		next = time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Add(at)
	}
	return next
}
