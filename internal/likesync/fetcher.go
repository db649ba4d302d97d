package likesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultFetchRetryDelay = 3 * time.Second
	fetchRetries           = 3
	stopPollInterval       = 100 * time.Millisecond
)

// StopFunc reports whether the cooperative stop signal has been raised.
type StopFunc func() bool

func (s StopFunc) raised() bool {
	return s != nil && s()
}

// PageFetcher reads one page of relation records with bounded retry.
type PageFetcher struct {
	relations    repository.RelationRepository
	relationType domain.RelationType
	retries      int
	baseDelay    time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger
}

func NewPageFetcher(
	relations repository.RelationRepository,
	relationType domain.RelationType,
	baseDelay time.Duration,
	logger *zap.Logger,
) (*PageFetcher, error) {
	if relations == nil {
		return nil, fmt.Errorf("relation repository is required")
	}
	if !relationType.IsValid() {
		return nil, fmt.Errorf("%w: invalid relation type %q", domain.ErrValidation, relationType)
	}
	if baseDelay <= 0 {
		baseDelay = DefaultFetchRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PageFetcher{
		relations:    relations,
		relationType: relationType,
		retries:      fetchRetries,
		baseDelay:    baseDelay,
		sleep:        sleepWithContext,
		logger:       logger,
	}, nil
}

// Fetch returns page batchIndex. It gives up with ErrStopped when stop is raised
// before an attempt or during a backoff, and with ErrRetriesExhausted after the
// initial attempt and every retry failed.
func (f *PageFetcher) Fetch(
	ctx context.Context,
	stop StopFunc,
	filter domain.RelationFilter,
	batchIndex int,
	batchSize int,
) ([]domain.RelationRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			delay := f.baseDelay * time.Duration(attempt)
			f.logger.Warn("page query failed, retrying",
				zap.Int("batchIndex", batchIndex),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := f.backoff(ctx, stop, delay); err != nil {
				return nil, err
			}
		}

		if stop.raised() {
			return nil, domain.ErrStopped
		}

		records, err := f.relations.PageQuery(ctx, f.relationType, filter, batchIndex, batchSize)
		if err == nil {
			return records, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		lastErr = err
	}

	f.logger.Error("page query failed on every attempt",
		zap.Int("batchIndex", batchIndex),
		zap.Int("attempts", f.retries+1),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%w: batch %d: %v", domain.ErrRetriesExhausted, batchIndex, lastErr)
}

// backoff sleeps in short steps so a raised stop signal cuts the wait short.
func (f *PageFetcher) backoff(ctx context.Context, stop StopFunc, d time.Duration) error {
	for d > 0 {
		step := min(d, stopPollInterval)
		if err := f.sleep(ctx, step); err != nil {
			return err
		}
		if stop.raised() {
			return domain.ErrStopped
		}
		d -= step
	}
	return nil
}
