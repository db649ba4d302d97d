package likesync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

type fakeRelationRepo struct {
	countFn func(ctx context.Context, relationType domain.RelationType, filter domain.RelationFilter) (int64, error)
	pageFn  func(ctx context.Context, batchIndex int, batchSize int) ([]domain.RelationRecord, error)

	pageCalls atomic.Int64
}

func (f *fakeRelationRepo) Count(ctx context.Context, relationType domain.RelationType, filter domain.RelationFilter) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx, relationType, filter)
	}
	return 0, nil
}

func (f *fakeRelationRepo) PageQuery(
	ctx context.Context,
	relationType domain.RelationType,
	filter domain.RelationFilter,
	batchIndex int,
	batchSize int,
) ([]domain.RelationRecord, error) {
	f.pageCalls.Add(1)
	if f.pageFn != nil {
		return f.pageFn(ctx, batchIndex, batchSize)
	}
	return nil, nil
}

// tableRepo serves a table of n likes where record i is user u<i> liking
// content c<i>.
func tableRepo(n int) *fakeRelationRepo {
	return &fakeRelationRepo{
		countFn: func(context.Context, domain.RelationType, domain.RelationFilter) (int64, error) {
			return int64(n), nil
		},
		pageFn: func(_ context.Context, batchIndex int, batchSize int) ([]domain.RelationRecord, error) {
			return pageOf(n, batchIndex, batchSize), nil
		},
	}
}

func pageOf(n int, batchIndex int, batchSize int) []domain.RelationRecord {
	start := batchIndex * batchSize
	end := min(start+batchSize, n)
	if start >= end {
		return nil
	}
	records := make([]domain.RelationRecord, 0, end-start)
	for i := start; i < end; i++ {
		records = append(records, likeRecord(fmt.Sprintf("u%d", i), fmt.Sprintf("c%d", i)))
	}
	return records
}

func likeRecord(source string, target string) domain.RelationRecord {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return domain.RelationRecord{
		SourceID:     source,
		TargetID:     target,
		RelationType: domain.RelationTypeUserLikeContent,
		CreateTime:   &created,
	}
}

type fakeOwnerResolver struct {
	resolveFn func(ctx context.Context, contentID string) (string, bool, error)
	calls     atomic.Int64
}

func (f *fakeOwnerResolver) ResolveOwner(ctx context.Context, contentID string) (string, bool, error) {
	f.calls.Add(1)
	if f.resolveFn != nil {
		return f.resolveFn(ctx, contentID)
	}
	return "owner-" + contentID, true, nil
}

type fakeSender struct {
	sendFn func(ctx context.Context, req domain.NotificationRequest) (bool, error)

	mu   sync.Mutex
	sent []domain.NotificationRequest
}

func (f *fakeSender) Send(ctx context.Context, req domain.NotificationRequest) (bool, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, req)
	}
	return true, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLimiter struct {
	waitFn func(ctx context.Context, scope string) error
	waits  atomic.Int64
}

func (f *fakeLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(ctx context.Context, scope string) error {
	f.waits.Add(1)
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

type fakeRunRepo struct {
	mu      sync.Mutex
	created []domain.JobRun
	err     error
}

func (f *fakeRunRepo) Create(ctx context.Context, run *domain.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *run)
	return f.err
}

func (f *fakeRunRepo) Latest(ctx context.Context) (*domain.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil, domain.ErrNotFound
	}
	run := f.created[len(f.created)-1]
	return &run, nil
}

func (f *fakeRunRepo) List(ctx context.Context, limit int) ([]domain.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.JobRun(nil), f.created...), nil
}

func noSleep(context.Context, time.Duration) error { return nil }

// quietGuard never reports pressure.
func quietGuard() *MemoryGuard {
	g := NewMemoryGuard(0, 0, nil)
	g.sample = func() MemorySample { return MemorySample{HeapAlloc: 1 << 20} }
	g.sleep = noSleep
	return g
}

type testEngine struct {
	fetcher     *PageFetcher
	builder     *NotificationBuilder
	dispatcher  *NotificationDispatcher
	coordinator *Coordinator
}

func newTestEngine(
	t *testing.T,
	repo *fakeRelationRepo,
	owners *fakeOwnerResolver,
	sender *fakeSender,
	guard *MemoryGuard,
	width int,
) *testEngine {
	t.Helper()

	if guard == nil {
		guard = quietGuard()
	}

	fetcher, err := NewPageFetcher(repo, domain.RelationTypeUserLikeContent, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewPageFetcher() error = %v", err)
	}
	fetcher.sleep = noSleep

	builder, err := NewNotificationBuilder(owners, guard, nil)
	if err != nil {
		t.Fatalf("NewNotificationBuilder() error = %v", err)
	}

	dispatcher, err := NewNotificationDispatcher(sender, nil, guard, nil)
	if err != nil {
		t.Fatalf("NewNotificationDispatcher() error = %v", err)
	}
	dispatcher.sleep = noSleep

	coordinator, err := NewCoordinator(fetcher, builder, dispatcher, guard, width, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	coordinator.sleep = noSleep

	return &testEngine{
		fetcher:     fetcher,
		builder:     builder,
		dispatcher:  dispatcher,
		coordinator: coordinator,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 5s")
}

func neverStop() bool { return false }
