package likesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/repository"
	"go.uber.org/zap"
)

const builderMemoryCheckEvery = 100

// RequestBatch is a pooled slice of built requests. Return it with Release
// once it has been dispatched.
type RequestBatch struct {
	Requests []domain.NotificationRequest
	Skipped  int
	Stopped  bool
}

// NotificationBuilder turns relation records into notification requests for
// the owner of each liked content.
type NotificationBuilder struct {
	owners repository.OwnerResolver
	guard  *MemoryGuard
	logger *zap.Logger
	pool   sync.Pool
}

func NewNotificationBuilder(owners repository.OwnerResolver, guard *MemoryGuard, logger *zap.Logger) (*NotificationBuilder, error) {
	if owners == nil {
		return nil, fmt.Errorf("owner resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &NotificationBuilder{
		owners: owners,
		guard:  guard,
		logger: logger,
	}
	b.pool.New = func() any {
		return &RequestBatch{Requests: make([]domain.NotificationRequest, 0, mediumBatchSize)}
	}
	return b, nil
}

// Build converts records in order. Records with a missing id, an unresolved
// owner or a self-like are skipped, as are records whose lookup fails.
func (b *NotificationBuilder) Build(ctx context.Context, stop StopFunc, records []domain.RelationRecord) *RequestBatch {
	batch := b.pool.Get().(*RequestBatch)
	batch.Requests = batch.Requests[:0]
	batch.Skipped = 0
	batch.Stopped = false

	for i := range records {
		if stop.raised() || ctx.Err() != nil {
			batch.Stopped = true
			break
		}
		if i > 0 && i%builderMemoryCheckEvery == 0 {
			b.guard.Check(ctx)
		}

		req, ok := b.buildOne(ctx, records[i])
		if !ok {
			batch.Skipped++
			continue
		}
		batch.Requests = append(batch.Requests, req)
	}

	return batch
}

func (b *NotificationBuilder) Release(batch *RequestBatch) {
	if batch == nil {
		return
	}
	clear(batch.Requests)
	batch.Requests = batch.Requests[:0]
	b.pool.Put(batch)
}

func (b *NotificationBuilder) buildOne(ctx context.Context, record domain.RelationRecord) (req domain.NotificationRequest, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while building notification",
				zap.String("sourceId", record.SourceID),
				zap.String("targetId", record.TargetID),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	if record.SourceID == "" || record.TargetID == "" {
		return req, false
	}

	owner, found, err := b.owners.ResolveOwner(ctx, record.TargetID)
	if err != nil {
		b.logger.Warn("owner lookup failed, skipping record",
			zap.String("contentId", record.TargetID),
			zap.Error(err),
		)
		return req, false
	}
	if !found || owner == "" || owner == record.SourceID {
		return req, false
	}

	return domain.NotificationRequest{
		UserID:       owner,
		RelateUserID: record.SourceID,
		RelateType:   domain.RelationTypeUserLikeContent,
		ContentID:    record.TargetID,
		NotifyTime:   record.CreateTime,
	}, true
}
