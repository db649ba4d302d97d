package likesync

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultMemoryHighWatermark = 800 << 20
	defaultMemoryPause         = time.Second
)

// MemorySample is one reading of heap use against the runtime memory limit.
// Limit is zero when no soft limit is configured.
type MemorySample struct {
	HeapAlloc uint64
	Limit     uint64
}

func readMemorySample() MemorySample {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	sample := MemorySample{HeapAlloc: stats.HeapAlloc}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		sample.Limit = uint64(limit)
	}
	return sample
}

// MemoryGuard applies backpressure when heap use is high. It never forces a
// collection; a pause gives the collector and in-flight sends time to drain.
// A nil guard is a no-op.
type MemoryGuard struct {
	highWatermark uint64
	hardLimit     uint64
	pause         time.Duration
	sample        func() MemorySample
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// NewMemoryGuard builds a guard. highWatermark 0 selects the 800MB default and
// hardLimit 0 disables the exhaustion check.
func NewMemoryGuard(highWatermark uint64, hardLimit uint64, logger *zap.Logger) *MemoryGuard {
	if highWatermark == 0 {
		highWatermark = DefaultMemoryHighWatermark
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MemoryGuard{
		highWatermark: highWatermark,
		hardLimit:     hardLimit,
		pause:         defaultMemoryPause,
		sample:        readMemorySample,
		sleep:         sleepWithContext,
		logger:        logger,
	}
}

func (g *MemoryGuard) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

// Check samples memory and pauses when use is above the high watermark.
// It reports whether pressure was observed.
func (g *MemoryGuard) Check(ctx context.Context) bool {
	if g == nil {
		return false
	}

	s := g.sample()
	if s.HeapAlloc < g.highWatermark {
		return false
	}

	fields := []zap.Field{
		zap.Uint64("heapAllocMB", s.HeapAlloc>>20),
		zap.Uint64("highWatermarkMB", g.highWatermark>>20),
	}
	if s.Limit > 0 {
		fields = append(fields,
			zap.Uint64("memoryLimitMB", s.Limit>>20),
			zap.Float64("usage", float64(s.HeapAlloc)/float64(s.Limit)),
		)
	}
	g.logger.Warn("memory usage above high watermark, pausing", fields...)
	g.metrics.IncMemoryPressure()

	_ = g.sleep(ctx, g.pause)
	return true
}

// Exhausted reports whether heap use is at or above the hard limit.
func (g *MemoryGuard) Exhausted() bool {
	if g == nil || g.hardLimit == 0 {
		return false
	}
	return g.sample().HeapAlloc >= g.hardLimit
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
