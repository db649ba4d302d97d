package redis

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultSendsPerSec int64 = 100
	minWindowWait            = 10 * time.Millisecond
	windowSeconds            = 1
	rateKeyPrefix            = "likenotify:rate"

	// While Redis is failing, sends go out unpaced and Redis is not asked
	// again until the cooldown ends.
	failOpenCooldown = 5 * time.Second
)

// Fixed one-second window counter. The key expires with the window so idle
// scopes leave nothing behind.
var windowScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if used > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*DeliveryRateLimiter)(nil)

// DeliveryRateLimiter shares a per-second send budget between every job
// instance that talks to the same Redis. Scopes are relation types.
//
// Wait never blocks delivery on Redis itself: when the window script fails
// the limiter logs once, opens for failOpenCooldown and lets sends through.
type DeliveryRateLimiter struct {
	client        *goredis.Client
	sendsPerSec   int64
	logger        *zap.Logger
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	script        *goredis.Script
	degradedUntil atomic.Int64
}

func NewDeliveryRateLimiter(client *goredis.Client, sendsPerSec int, logger *zap.Logger) (*DeliveryRateLimiter, error) {
	return newDeliveryRateLimiter(client, int64(sendsPerSec), logger, time.Now, sleepWithContext)
}

func newDeliveryRateLimiter(
	client *goredis.Client,
	sendsPerSec int64,
	logger *zap.Logger,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*DeliveryRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if sendsPerSec <= 0 {
		sendsPerSec = defaultSendsPerSec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &DeliveryRateLimiter{
		client:      client,
		sendsPerSec: sendsPerSec,
		logger:      logger,
		now:         nowFn,
		sleep:       sleepFn,
		script:      windowScript,
	}, nil
}

// Allow takes one send from the current window of scope.
func (l *DeliveryRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if l == nil || l.client == nil || l.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := strings.ToLower(strings.TrimSpace(scope))
	if normalized == "" {
		return false, fmt.Errorf("scope is required")
	}

	key := fmt.Sprintf("%s:%s:%d", rateKeyPrefix, normalized, l.now().UTC().Unix())
	result, err := l.script.Run(ctx, l.client, []string{key}, l.sendsPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until scope has budget in the current window. An exhausted
// window is waited out to its boundary rather than polled. Only context
// errors and an empty scope are returned.
func (l *DeliveryRateLimiter) Wait(ctx context.Context, scope string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.degraded() {
			return nil
		}

		allowed, err := l.Allow(ctx, scope)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if strings.TrimSpace(scope) == "" {
				return err
			}
			l.openFor(failOpenCooldown, scope, err)
			return nil
		}
		if allowed {
			return nil
		}

		if err := l.sleep(ctx, l.untilNextWindow()); err != nil {
			return err
		}
	}
}

func (l *DeliveryRateLimiter) untilNextWindow() time.Duration {
	now := l.now()
	wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
	return max(wait, minWindowWait)
}

func (l *DeliveryRateLimiter) degraded() bool {
	until := l.degradedUntil.Load()
	return until != 0 && l.now().UnixNano() < until
}

func (l *DeliveryRateLimiter) openFor(d time.Duration, scope string, err error) {
	l.degradedUntil.Store(l.now().Add(d).UnixNano())
	l.logger.Warn("delivery rate limiter unavailable, sending unpaced",
		zap.String("scope", scope),
		zap.Duration("cooldown", d),
		zap.Error(err),
	)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
