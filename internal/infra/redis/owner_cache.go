package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultOwnerTTL = 10 * time.Minute
	ownerKeyPrefix  = "likenotify:owner"
)

var _ repository.OwnerResolver = (*CachedOwnerResolver)(nil)

// CachedOwnerResolver is a read-through cache in front of another resolver.
// Only positive lookups are cached; a missing owner is asked again next time.
type CachedOwnerResolver struct {
	client *goredis.Client
	next   repository.OwnerResolver
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedOwnerResolver(
	client *goredis.Client,
	next repository.OwnerResolver,
	ttl time.Duration,
	logger *zap.Logger,
) (*CachedOwnerResolver, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if next == nil {
		return nil, fmt.Errorf("owner resolver is required")
	}
	if ttl <= 0 {
		ttl = defaultOwnerTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedOwnerResolver{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (r *CachedOwnerResolver) ResolveOwner(ctx context.Context, contentID string) (string, bool, error) {
	key := ownerKey(contentID)

	cached, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil && strings.TrimSpace(cached) != "":
		return cached, true, nil
	case err != nil && !errors.Is(err, goredis.Nil):
		// Cache trouble must not fail the lookup.
		r.logger.Warn("owner cache read failed",
			zap.String("contentId", contentID),
			zap.Error(err),
		)
	}

	owner, found, err := r.next.ResolveOwner(ctx, contentID)
	if err != nil || !found {
		return owner, found, err
	}

	if setErr := r.client.Set(ctx, key, owner, r.ttl).Err(); setErr != nil {
		r.logger.Warn("owner cache write failed",
			zap.String("contentId", contentID),
			zap.Error(setErr),
		)
	}

	return owner, true, nil
}

func ownerKey(contentID string) string {
	return fmt.Sprintf("%s:%s", ownerKeyPrefix, strings.TrimSpace(contentID))
}
