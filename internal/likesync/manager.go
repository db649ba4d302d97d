package likesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/observability"
	"github.com/kursadbilgin/like-notify-job/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultShutdownGrace = 30 * time.Second
	DefaultPoolGrace     = 5 * time.Second
	runPersistTimeout    = 5 * time.Second
)

// RunParams are the caller-supplied overrides of a run. Non-positive
// BatchSize and EndBatch mean "derive from the table size".
type RunParams struct {
	StartBatch int
	EndBatch   int
	BatchSize  int
	Filter     domain.RelationFilter
	Source     string
	Operator   string
}

// Status is the externally visible job state.
type Status struct {
	IsRunning               bool           `json:"isRunning"`
	ShuttingDown            bool           `json:"shuttingDown"`
	HumanStatus             string         `json:"status"`
	RunID                   string         `json:"runId,omitempty"`
	StartedAt               *time.Time     `json:"startedAt,omitempty"`
	LastProcessedBatchIndex int64          `json:"lastProcessedBatchIndex"`
	TotalProcessedCount     int64          `json:"totalProcessedCount"`
	CompletedBatches        int64          `json:"completedBatches"`
	FailedBatches           int64          `json:"failedBatches"`
	ConsecutiveFailureCount int            `json:"consecutiveFailureCount"`
	Timestamp               int64          `json:"timestamp"`
	LastRun                 *domain.JobRun `json:"lastRun,omitempty"`
}

// Manager owns the single-flight run lifecycle: trigger, status, stop and
// shutdown. Only one run executes at a time.
type Manager struct {
	relations    repository.RelationRepository
	runs         repository.RunRepository
	relationType domain.RelationType
	coordinator  *Coordinator
	breaker      *CircuitBreaker
	logger       *zap.Logger
	metrics      *observability.Metrics

	shutdownGrace time.Duration
	poolGrace     time.Duration
	now           func() time.Time
	newRunID      func() string

	running       atomic.Bool
	shuttingDown  atomic.Bool
	stopRequested atomic.Bool
	state         atomic.Pointer[RunState]
	lastRun       atomic.Pointer[domain.JobRun]

	// mu orders run start against the shutdown flag.
	mu      sync.Mutex
	runDone chan struct{}

	baseCtx    context.Context
	cancelRuns context.CancelFunc
}

// NewManager builds a Manager. runs may be nil, in which case finished runs
// are only kept in memory.
func NewManager(
	relations repository.RelationRepository,
	runs repository.RunRepository,
	coordinator *Coordinator,
	breaker *CircuitBreaker,
	logger *zap.Logger,
) (*Manager, error) {
	if relations == nil {
		return nil, fmt.Errorf("relation repository is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerThreshold, DefaultBreakerCooldown)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		relations:     relations,
		runs:          runs,
		relationType:  domain.RelationTypeUserLikeContent,
		coordinator:   coordinator,
		breaker:       breaker,
		logger:        logger,
		shutdownGrace: DefaultShutdownGrace,
		poolGrace:     DefaultPoolGrace,
		now:           time.Now,
		newRunID:      func() string { return uuid.NewString() },
		baseCtx:       baseCtx,
		cancelRuns:    cancel,
	}, nil
}

func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// SetGracePeriods overrides how long Shutdown waits for the run and then for
// the worker pool before cancelling in-flight calls.
func (m *Manager) SetGracePeriods(shutdown time.Duration, pool time.Duration) {
	if shutdown > 0 {
		m.shutdownGrace = shutdown
	}
	if pool > 0 {
		m.poolGrace = pool
	}
}

// Trigger starts a run in the background and reports whether it was started.
func (m *Manager) Trigger(params RunParams) bool {
	logger := m.logger.With(zap.String("source", params.Source), zap.String("operator", params.Operator))

	if err := params.Filter.Validate(); err != nil {
		logger.Warn("sync trigger rejected: invalid parameters", zap.Error(err))
		m.metrics.IncTriggerRejected("invalid_params")
		return false
	}
	if m.breaker.ShouldSkip() {
		logger.Warn("sync trigger rejected: too many consecutive failures",
			zap.Int("consecutiveFailures", m.breaker.Failures()),
		)
		m.metrics.IncTriggerRejected("circuit_open")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown.Load() {
		logger.Warn("sync trigger rejected: shutting down")
		m.metrics.IncTriggerRejected("shutting_down")
		return false
	}
	if !m.running.CompareAndSwap(false, true) {
		logger.Info("sync trigger rejected: a run is already active")
		m.metrics.IncTriggerRejected("already_running")
		return false
	}

	state := NewRunState(m.newRunID(), m.now())
	m.state.Store(state)
	m.stopRequested.Store(false)

	done := make(chan struct{})
	m.runDone = done

	logger.Info("sync run accepted",
		zap.String("runId", state.RunID),
		zap.Int("startBatch", params.StartBatch),
		zap.Int("endBatch", params.EndBatch),
		zap.Int("batchSize", params.BatchSize),
	)
	go m.run(params, state, done)
	return true
}

// Stop asks the active run to finish its current work and submit nothing
// more. It reports whether a run was active.
func (m *Manager) Stop() bool {
	if !m.running.Load() {
		return false
	}
	m.stopRequested.Store(true)
	m.logger.Info("sync run stop requested")
	return true
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

func (m *Manager) Status() Status {
	now := m.now()
	status := Status{
		IsRunning:               m.running.Load(),
		ShuttingDown:            m.shuttingDown.Load(),
		LastProcessedBatchIndex: -1,
		ConsecutiveFailureCount: m.breaker.Failures(),
		Timestamp:               now.UnixMilli(),
		LastRun:                 m.lastRun.Load(),
	}

	if state := m.state.Load(); state != nil {
		snap := state.Snapshot()
		startedAt := snap.StartedAt
		status.RunID = snap.RunID
		status.StartedAt = &startedAt
		status.LastProcessedBatchIndex = snap.LastProcessedBatchIndex
		status.TotalProcessedCount = snap.TotalProcessedCount
		status.CompletedBatches = snap.CompletedBatches
		status.FailedBatches = snap.FailedBatches
	}

	status.HumanStatus = humanStatus(status, now)
	return status
}

func humanStatus(s Status, now time.Time) string {
	if !s.IsRunning {
		if s.ShuttingDown {
			return fmt.Sprintf("shutting down (consecutive failures: %d)", s.ConsecutiveFailureCount)
		}
		return fmt.Sprintf("idle (consecutive failures: %d)", s.ConsecutiveFailureCount)
	}

	var elapsed time.Duration
	if s.StartedAt != nil {
		elapsed = now.Sub(*s.StartedAt)
	}
	return fmt.Sprintf("running (elapsed: %dm, processed: %d records, last batch: %d, consecutive failures: %d)",
		int(elapsed.Minutes()), s.TotalProcessedCount, s.LastProcessedBatchIndex, s.ConsecutiveFailureCount)
}

// Shutdown refuses new runs and raises the stop signal, then waits for the
// active run. After the shutdown grace and a further pool grace it cancels
// the run context, which aborts in-flight external calls.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown.Store(true)
	done := m.runDone
	m.mu.Unlock()

	if done == nil || !m.running.Load() {
		m.cancelRuns()
		return nil
	}

	m.logger.Info("waiting for active sync run to stop", zap.Duration("grace", m.shutdownGrace))
	if waitDone(ctx, done, m.shutdownGrace) {
		m.cancelRuns()
		return nil
	}

	m.logger.Warn("sync run still active after shutdown grace, waiting for worker pool",
		zap.Duration("grace", m.poolGrace),
	)
	if waitDone(ctx, done, m.poolGrace) {
		m.cancelRuns()
		return nil
	}

	m.logger.Warn("cancelling in-flight sync work")
	m.cancelRuns()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitDone(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) stopSignal() bool {
	return m.stopRequested.Load() || m.shuttingDown.Load()
}

func (m *Manager) run(params RunParams, state *RunState, done chan struct{}) {
	defer close(done)
	defer m.running.Store(false)

	m.metrics.SetRunActive(true)
	defer m.metrics.SetRunActive(false)

	ctx := observability.WithRunID(m.baseCtx, state.RunID)
	logger := observability.WithContextLogger(m.logger, ctx)

	summary, err := m.execute(ctx, logger, params, state)
	outcome := runOutcome(summary, err)

	switch outcome {
	case domain.RunOutcomeFailed:
		m.breaker.RecordFailure()
		logger.Error("sync run failed",
			zap.Int("consecutiveFailures", m.breaker.Failures()),
			zap.Error(err),
		)
	case domain.RunOutcomeCanceled:
		if err == nil {
			m.breaker.RecordSuccess()
		}
		logger.Info("sync run canceled", zap.Int64("processedCount", summary.TotalProcessedCount))
	default:
		m.breaker.RecordSuccess()
		logger.Info("sync run finished",
			zap.String("outcome", outcome.String()),
			zap.Int64("processedCount", summary.TotalProcessedCount),
			zap.Int64("succeededBatches", summary.SucceededBatches),
			zap.Int64("failedBatches", summary.FailedBatches),
			zap.Int64("notificationsSent", summary.NotificationsSent),
		)
	}
	m.metrics.SetBreakerFailures(m.breaker.Failures())

	finishedAt := m.now()
	record := newJobRun(state, summary, outcome, err, finishedAt)
	m.lastRun.Store(record)
	m.metrics.ObserveRun(outcome.String(), record.Duration())
	m.persist(logger, record)
}

// execute wraps the run body so that a panic anywhere in it ends the run as
// a failure instead of crashing the process.
func (m *Manager) execute(ctx context.Context, logger *zap.Logger, params RunParams, state *RunState) (summary RunSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
			summary = RunSummary{RunSnapshot: state.Snapshot()}
		}
	}()

	total, err := m.relations.Count(ctx, m.relationType, params.Filter)
	if err != nil {
		return RunSummary{RunSnapshot: state.Snapshot()}, fmt.Errorf("failed to count relations: %w", err)
	}

	plan := Plan(total, params.BatchSize, params.StartBatch, params.EndBatch)
	logger.Info("sync run planned",
		zap.Int64("totalCount", plan.TotalCount),
		zap.Int("batchSize", plan.BatchSize),
		zap.Int("totalBatches", plan.TotalBatches),
		zap.Int("startBatch", plan.StartBatch),
		zap.Int("endBatch", plan.EndBatch),
	)

	return m.coordinator.Execute(ctx, m.stopSignal, plan, params.Filter, state)
}

func runOutcome(summary RunSummary, err error) domain.RunOutcome {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.RunOutcomeCanceled
	case err != nil:
		return domain.RunOutcomeFailed
	case summary.TimedOut:
		return domain.RunOutcomeTimedOut
	case summary.Stopped:
		return domain.RunOutcomeCanceled
	default:
		return domain.RunOutcomeSucceeded
	}
}

func newJobRun(state *RunState, summary RunSummary, outcome domain.RunOutcome, err error, finishedAt time.Time) *domain.JobRun {
	snap := state.Snapshot()
	run := &domain.JobRun{
		ID:                snap.RunID,
		RelationType:      domain.RelationTypeUserLikeContent,
		Outcome:           outcome,
		TotalCount:        snap.Plan.TotalCount,
		BatchSize:         snap.Plan.BatchSize,
		StartBatch:        snap.Plan.StartBatch,
		EndBatch:          snap.Plan.EndBatch,
		CompletedBatches:  max(snap.CompletedBatches, summary.CompletedBatches),
		SucceededBatches:  snap.SucceededBatches,
		FailedBatches:     snap.FailedBatches,
		RecordsProcessed:  snap.TotalProcessedCount,
		NotificationsSent: snap.NotificationsSent,
		NotificationsFail: snap.NotificationsFailed,
		StartedAt:         snap.StartedAt,
		FinishedAt:        finishedAt,
	}
	if err != nil {
		msg := err.Error()
		run.Error = &msg
	}
	return run
}

func (m *Manager) persist(logger *zap.Logger, run *domain.JobRun) {
	if m.runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), runPersistTimeout)
	defer cancel()

	if err := m.runs.Create(ctx, run); err != nil {
		logger.Warn("failed to persist sync run", zap.Error(err))
	}
}

// LastRun is the summary of the most recently finished run, or nil.
func (m *Manager) LastRun() *domain.JobRun {
	return m.lastRun.Load()
}
