package ratelimit

import "context"

// RateLimiter caps delivery throughput per scope (one scope per relation type).
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
