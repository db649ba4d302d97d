package likesync

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/observability"
	"github.com/kursadbilgin/like-notify-job/internal/provider"
	"github.com/kursadbilgin/like-notify-job/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	notifySubBatchSize         = 20
	defaultPacingInterval      = 100 * time.Millisecond
	dispatcherMemoryCheckEvery = 5
)

// DispatchReport summarises one Dispatch call.
type DispatchReport struct {
	Attempted int
	Succeeded int
	Failed    int
	Stopped   bool
}

// NotificationDispatcher sends requests one by one in paced sub-batches.
// A failed delivery is counted and never aborts the batch.
type NotificationDispatcher struct {
	sender       provider.Sender
	limiter      ratelimit.RateLimiter
	guard        *MemoryGuard
	subBatchSize int
	pacing       time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// NewNotificationDispatcher builds a dispatcher. limiter may be nil.
func NewNotificationDispatcher(
	sender provider.Sender,
	limiter ratelimit.RateLimiter,
	guard *MemoryGuard,
	logger *zap.Logger,
) (*NotificationDispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("notification sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationDispatcher{
		sender:       sender,
		limiter:      limiter,
		guard:        guard,
		subBatchSize: notifySubBatchSize,
		pacing:       defaultPacingInterval,
		sleep:        sleepWithContext,
		now:          time.Now,
		logger:       logger,
	}, nil
}

func (d *NotificationDispatcher) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

func (d *NotificationDispatcher) Dispatch(ctx context.Context, stop StopFunc, requests []domain.NotificationRequest) DispatchReport {
	var report DispatchReport

	for start, chunk := 0, 0; start < len(requests); start, chunk = start+d.subBatchSize, chunk+1 {
		if stop.raised() || ctx.Err() != nil {
			report.Stopped = true
			return report
		}

		if chunk > 0 {
			if err := d.sleep(ctx, d.pacing); err != nil {
				report.Stopped = true
				return report
			}
			if chunk%dispatcherMemoryCheckEvery == 0 {
				d.guard.Check(ctx)
			}
		}

		end := min(start+d.subBatchSize, len(requests))
		for i := start; i < end; i++ {
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx, requests[i].RelateType.String()); err != nil {
					if ctx.Err() != nil {
						report.Stopped = true
						return report
					}
					d.logger.Warn("rate limiter unavailable, sending unpaced", zap.Error(err))
				}
			}

			report.Attempted++
			if d.send(ctx, requests[i]) {
				report.Succeeded++
			} else {
				report.Failed++
			}
		}
	}

	return report
}

func (d *NotificationDispatcher) send(ctx context.Context, req domain.NotificationRequest) (delivered bool) {
	relationType := req.RelateType.String()
	startedAt := d.now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while sending notification",
				zap.String("userId", req.UserID),
				zap.String("contentId", req.ContentID),
				zap.Any("panic", r),
			)
			d.metrics.IncNotificationFailed(relationType, "panic")
			delivered = false
		}
	}()

	ok, err := d.sender.Send(ctx, req)
	d.metrics.ObserveNotificationSendDuration(relationType, d.now().Sub(startedAt))

	switch {
	case err != nil:
		d.logger.Warn("notification send failed",
			zap.String("userId", req.UserID),
			zap.String("relateUserId", req.RelateUserID),
			zap.String("contentId", req.ContentID),
			zap.Error(err),
		)
		d.metrics.IncNotificationFailed(relationType, provider.FailureReason(err))
		return false
	case !ok:
		d.logger.Warn("notification declined by notify service",
			zap.String("userId", req.UserID),
			zap.String("contentId", req.ContentID),
		)
		d.metrics.IncNotificationFailed(relationType, "rejected")
		return false
	}

	d.metrics.IncNotificationSent(relationType)
	return true
}
