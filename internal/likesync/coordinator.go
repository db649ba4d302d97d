package likesync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRunDeadline = 30 * time.Minute

	processAttempts             = 3
	defaultProcessRetryDelay    = 3 * time.Second
	progressLogEvery            = 10
	coordinatorMemoryCheckEvery = 20
)

// RunSummary is what Execute reports once it stops waiting.
type RunSummary struct {
	RunSnapshot
	TimedOut bool
	Stopped  bool
}

// Coordinator fans batch tasks out to a bounded pool and waits for them
// within the run deadline.
type Coordinator struct {
	fetcher    *PageFetcher
	builder    *NotificationBuilder
	dispatcher *NotificationDispatcher
	guard      *MemoryGuard
	width      int
	deadline   time.Duration
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewCoordinator(
	fetcher *PageFetcher,
	builder *NotificationBuilder,
	dispatcher *NotificationDispatcher,
	guard *MemoryGuard,
	width int,
	deadline time.Duration,
	logger *zap.Logger,
) (*Coordinator, error) {
	if fetcher == nil || builder == nil || dispatcher == nil {
		return nil, fmt.Errorf("fetcher, builder and dispatcher are required")
	}
	if width < 1 {
		width = 1
	}
	if deadline <= 0 {
		deadline = DefaultRunDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		fetcher:    fetcher,
		builder:    builder,
		dispatcher: dispatcher,
		guard:      guard,
		width:      width,
		deadline:   deadline,
		retryDelay: defaultProcessRetryDelay,
		sleep:      sleepWithContext,
		logger:     logger,
	}, nil
}

func (c *Coordinator) SetMetrics(metrics *observability.Metrics) {
	c.metrics = metrics
}

// Execute processes every batch in plan. When the deadline passes it stops
// submitting and returns a timed-out summary while in-flight tasks finish on
// their own. Cancelling ctx cancels outstanding tasks and returns ctx.Err().
func (c *Coordinator) Execute(
	ctx context.Context,
	stop StopFunc,
	plan BatchPlan,
	filter domain.RelationFilter,
	state *RunState,
) (RunSummary, error) {
	logger := observability.WithContextLogger(c.logger, ctx)
	state.setPlan(plan)
	if plan.Empty() {
		logger.Info("nothing to process", zap.Int64("totalCount", plan.TotalCount))
		return RunSummary{RunSnapshot: state.Snapshot()}, nil
	}

	var abandoned atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(c.width)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for batchIndex := plan.StartBatch; batchIndex <= plan.EndBatch; batchIndex++ {
			if abandoned.Load() || stop.raised() || ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if abandoned.Load() {
					return nil
				}
				c.runBatch(ctx, logger, stop, plan, filter, batchIndex, state)
				return nil
			})
		}
		_ = g.Wait()
	}()

	timer := time.NewTimer(c.deadline)
	defer timer.Stop()

	select {
	case <-done:
		if err := ctx.Err(); err != nil {
			return RunSummary{RunSnapshot: state.Snapshot(), Stopped: true}, err
		}
		return RunSummary{RunSnapshot: state.Snapshot(), Stopped: stop.raised()}, nil
	case <-timer.C:
		abandoned.Store(true)
		summary := RunSummary{RunSnapshot: state.Snapshot(), TimedOut: true}
		logger.Warn("run deadline reached, no further batches will be submitted",
			zap.Duration("deadline", c.deadline),
			zap.Int64("processedCount", summary.TotalProcessedCount),
			zap.Int64("completedBatches", summary.CompletedBatches),
		)
		return summary, nil
	case <-ctx.Done():
		abandoned.Store(true)
		return RunSummary{RunSnapshot: state.Snapshot(), Stopped: true}, ctx.Err()
	}
}

func (c *Coordinator) runBatch(
	ctx context.Context,
	logger *zap.Logger,
	stop StopFunc,
	plan BatchPlan,
	filter domain.RelationFilter,
	batchIndex int,
	state *RunState,
) {
	if stop.raised() || ctx.Err() != nil {
		return
	}

	records, err := c.fetcher.Fetch(ctx, stop, filter, batchIndex, plan.BatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrStopped) || ctx.Err() != nil {
			return
		}
		logger.Error("batch fetch failed", zap.Int("batchIndex", batchIndex), zap.Error(err))
		c.metrics.IncBatch("failed", 0)
		c.completed(ctx, logger, plan, state.batchFailed(), state)
		return
	}

	if len(records) == 0 {
		c.completed(ctx, logger, plan, state.batchSkipped(), state)
		return
	}

	report, err := c.processWithRetry(ctx, logger, stop, batchIndex, records)
	state.recordDispatch(report)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		logger.Error("batch processing failed", zap.Int("batchIndex", batchIndex), zap.Error(err))
		c.metrics.IncBatch("failed", 0)
		c.completed(ctx, logger, plan, state.batchFailed(), state)
	case report.Stopped:
		logger.Info("batch interrupted by stop request",
			zap.Int("batchIndex", batchIndex),
			zap.Int("sent", report.Succeeded),
		)
	default:
		c.metrics.IncBatch("succeeded", len(records))
		c.completed(ctx, logger, plan, state.batchSucceeded(batchIndex, len(records)), state)
	}
}

func (c *Coordinator) completed(ctx context.Context, logger *zap.Logger, plan BatchPlan, completed int64, state *RunState) {
	if completed%progressLogEvery == 0 || completed == int64(plan.Len()) {
		snap := state.Snapshot()
		logger.Info("sync progress",
			zap.Int64("completedBatches", completed),
			zap.Int("plannedBatches", plan.Len()),
			zap.Int64("processedCount", snap.TotalProcessedCount),
			zap.Int64("failedBatches", snap.FailedBatches),
			zap.Int64("lastProcessedBatchIndex", snap.LastProcessedBatchIndex),
		)
	}
	if completed%coordinatorMemoryCheckEvery == 0 {
		c.guard.Check(ctx)
	}
}

// processWithRetry builds and dispatches one page. Resource exhaustion and
// cancellation are returned without another attempt.
func (c *Coordinator) processWithRetry(
	ctx context.Context,
	logger *zap.Logger,
	stop StopFunc,
	batchIndex int,
	records []domain.RelationRecord,
) (DispatchReport, error) {
	var total DispatchReport
	var lastErr error

	for attempt := 1; attempt <= processAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retryDelay*time.Duration(attempt-1)); err != nil {
				return total, err
			}
		}

		report, err := c.processOnce(ctx, stop, records)
		total.Attempted += report.Attempted
		total.Succeeded += report.Succeeded
		total.Failed += report.Failed
		total.Stopped = report.Stopped
		if err == nil {
			return total, nil
		}
		if errors.Is(err, domain.ErrResourceExhausted) || ctx.Err() != nil {
			return total, err
		}

		lastErr = err
		logger.Warn("batch processing attempt failed",
			zap.Int("batchIndex", batchIndex),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return total, fmt.Errorf("%w: batch %d: %v", domain.ErrRetriesExhausted, batchIndex, lastErr)
}

func (c *Coordinator) processOnce(ctx context.Context, stop StopFunc, records []domain.RelationRecord) (report DispatchReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch processing panicked: %v", r)
		}
	}()

	if c.guard.Exhausted() {
		c.guard.Check(ctx)
		return report, domain.ErrResourceExhausted
	}

	batch := c.builder.Build(ctx, stop, records)
	defer c.builder.Release(batch)

	if batch.Stopped {
		report.Stopped = true
		return report, nil
	}

	return c.dispatcher.Dispatch(ctx, stop, batch.Requests), nil
}
