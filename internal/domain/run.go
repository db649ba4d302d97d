package domain

import "time"

// RunOutcome describes how a sync run ended.
type RunOutcome string

const (
	RunOutcomeSucceeded RunOutcome = "SUCCEEDED"
	RunOutcomeFailed    RunOutcome = "FAILED"
	RunOutcomeCanceled  RunOutcome = "CANCELED"
	RunOutcomeTimedOut  RunOutcome = "TIMED_OUT"
)

func (o RunOutcome) String() string { return string(o) }

func (o RunOutcome) IsValid() bool {
	switch o {
	case RunOutcomeSucceeded, RunOutcomeFailed, RunOutcomeCanceled, RunOutcomeTimedOut:
		return true
	}
	return false
}

// JobRun is the audit record of one finished sync run.
type JobRun struct {
	ID                string
	RelationType      RelationType
	Outcome           RunOutcome
	TotalCount        int64
	BatchSize         int
	StartBatch        int
	EndBatch          int
	CompletedBatches  int64
	SucceededBatches  int64
	FailedBatches     int64
	RecordsProcessed  int64
	NotificationsSent int64
	NotificationsFail int64
	Error             *string
	StartedAt         time.Time
	FinishedAt        time.Time
}

func (r *JobRun) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
