package likesync

import (
	"sync/atomic"
	"time"
)

// RunState is the live progress of one run. Workers update it concurrently;
// readers take a Snapshot. A fresh RunState is created per run so late
// updates from abandoned tasks never leak into the next one.
type RunState struct {
	RunID     string
	StartedAt time.Time

	plan                atomic.Pointer[BatchPlan]
	lastProcessedBatch  atomic.Int64
	totalProcessed      atomic.Int64
	completedBatches    atomic.Int64
	succeededBatches    atomic.Int64
	failedBatches       atomic.Int64
	notificationsSent   atomic.Int64
	notificationsFailed atomic.Int64
}

func NewRunState(runID string, startedAt time.Time) *RunState {
	s := &RunState{RunID: runID, StartedAt: startedAt}
	s.lastProcessedBatch.Store(-1)
	return s
}

// RunSnapshot is a point-in-time copy of RunState counters.
type RunSnapshot struct {
	RunID                   string
	StartedAt               time.Time
	Plan                    BatchPlan
	LastProcessedBatchIndex int64
	TotalProcessedCount     int64
	CompletedBatches        int64
	SucceededBatches        int64
	FailedBatches           int64
	NotificationsSent       int64
	NotificationsFailed     int64
}

func (s *RunState) Snapshot() RunSnapshot {
	snap := RunSnapshot{
		RunID:                   s.RunID,
		StartedAt:               s.StartedAt,
		LastProcessedBatchIndex: s.lastProcessedBatch.Load(),
		TotalProcessedCount:     s.totalProcessed.Load(),
		CompletedBatches:        s.completedBatches.Load(),
		SucceededBatches:        s.succeededBatches.Load(),
		FailedBatches:           s.failedBatches.Load(),
		NotificationsSent:       s.notificationsSent.Load(),
		NotificationsFailed:     s.notificationsFailed.Load(),
	}
	if plan := s.plan.Load(); plan != nil {
		snap.Plan = *plan
	}
	return snap
}

func (s *RunState) setPlan(plan BatchPlan) {
	s.plan.Store(&plan)
}

func (s *RunState) recordDispatch(report DispatchReport) {
	s.notificationsSent.Add(int64(report.Succeeded))
	s.notificationsFailed.Add(int64(report.Failed))
}

func (s *RunState) batchSucceeded(batchIndex int, records int) int64 {
	s.totalProcessed.Add(int64(records))
	s.lastProcessedBatch.Store(int64(batchIndex))
	s.succeededBatches.Add(1)
	return s.completedBatches.Add(1)
}

func (s *RunState) batchFailed() int64 {
	s.failedBatches.Add(1)
	return s.completedBatches.Add(1)
}

// batchSkipped completes a batch that counts as neither success nor failure.
func (s *RunState) batchSkipped() int64 {
	return s.completedBatches.Add(1)
}
