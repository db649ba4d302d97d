package likesync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type managerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *managerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *managerClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, repo *fakeRelationRepo, sender *fakeSender, runs *fakeRunRepo) (*Manager, *managerClock) {
	t.Helper()

	engine := newTestEngine(t, repo, &fakeOwnerResolver{}, sender, nil, 1)
	clock := &managerClock{now: time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)}

	breaker := NewCircuitBreaker(DefaultBreakerThreshold, DefaultBreakerCooldown)
	breaker.now = clock.Now

	var manager *Manager
	var err error
	if runs != nil {
		manager, err = NewManager(repo, runs, engine.coordinator, breaker, nil)
	} else {
		manager, err = NewManager(repo, nil, engine.coordinator, breaker, nil)
	}
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	manager.now = clock.Now
	return manager, clock
}

func waitIdle(t *testing.T, manager *Manager) {
	t.Helper()
	waitFor(t, func() bool { return !manager.IsRunning() })
}

func TestManagerEndToEnd(t *testing.T) {
	t.Parallel()

	repo := tableRepo(1_000)
	sender := &fakeSender{}
	runs := &fakeRunRepo{}
	manager, _ := newTestManager(t, repo, sender, runs)

	if !manager.Trigger(RunParams{BatchSize: 200, EndBatch: -1, Source: "test"}) {
		t.Fatal("Trigger() = false on idle manager")
	}
	waitIdle(t, manager)

	status := manager.Status()
	if status.TotalProcessedCount != 1_000 {
		t.Fatalf("processed = %d, want 1000", status.TotalProcessedCount)
	}
	if status.LastProcessedBatchIndex != 4 {
		t.Fatalf("last batch = %d, want 4", status.LastProcessedBatchIndex)
	}
	if status.FailedBatches != 0 || status.ConsecutiveFailureCount != 0 {
		t.Fatalf("status = %+v", status)
	}
	if !strings.HasPrefix(status.HumanStatus, "idle") {
		t.Fatalf("HumanStatus = %q", status.HumanStatus)
	}

	last := manager.LastRun()
	if last == nil {
		t.Fatal("LastRun() = nil")
	}
	if last.Outcome != domain.RunOutcomeSucceeded {
		t.Fatalf("outcome = %s", last.Outcome)
	}
	if last.BatchSize != 200 || last.StartBatch != 0 || last.EndBatch != 4 || last.SucceededBatches != 5 {
		t.Fatalf("last run = %+v", last)
	}
	if last.NotificationsSent != 1_000 || sender.count() != 1_000 {
		t.Fatalf("sent = %d/%d", last.NotificationsSent, sender.count())
	}
	if last.ID == "" || last.ID != status.RunID {
		t.Fatalf("run id = %q, status run id = %q", last.ID, status.RunID)
	}

	persisted, err := runs.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if persisted.ID != last.ID || persisted.RecordsProcessed != 1_000 {
		t.Fatalf("persisted = %+v", persisted)
	}
}

func TestManagerSingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	repo := tableRepo(100)
	repo.pageFn = func(_ context.Context, batchIndex int, batchSize int) ([]domain.RelationRecord, error) {
		<-release
		return pageOf(100, batchIndex, batchSize), nil
	}
	manager, _ := newTestManager(t, repo, &fakeSender{}, nil)

	if !manager.Trigger(RunParams{}) {
		t.Fatal("first Trigger() = false")
	}
	waitFor(t, func() bool { return repo.pageCalls.Load() == 1 })

	var wg sync.WaitGroup
	var accepted sync.Map
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if manager.Trigger(RunParams{}) {
				accepted.Store(i, true)
			}
		}(i)
	}
	wg.Wait()
	accepted.Range(func(key, _ any) bool {
		t.Fatalf("concurrent trigger %v was accepted while a run was active", key)
		return false
	})

	status := manager.Status()
	if !status.IsRunning || !strings.HasPrefix(status.HumanStatus, "running") {
		t.Fatalf("status = %+v", status)
	}

	close(release)
	waitIdle(t, manager)

	if !manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() after completion = false")
	}
	waitIdle(t, manager)
}

func TestManagerBreakerSkipsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	repo := &fakeRelationRepo{
		countFn: func(context.Context, domain.RelationType, domain.RelationFilter) (int64, error) {
			return 0, errors.New("relation table unavailable")
		},
	}
	manager, clock := newTestManager(t, repo, &fakeSender{}, nil)

	for i := 0; i < 5; i++ {
		if !manager.Trigger(RunParams{}) {
			t.Fatalf("Trigger() #%d = false before threshold", i+1)
		}
		waitIdle(t, manager)
	}

	if got := manager.Status().ConsecutiveFailureCount; got != 5 {
		t.Fatalf("consecutive failures = %d, want 5", got)
	}
	if last := manager.LastRun(); last == nil || last.Outcome != domain.RunOutcomeFailed || last.Error == nil {
		t.Fatalf("last run = %+v", last)
	}

	if manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() should be skipped within the cooldown")
	}

	clock.Advance(11 * time.Second)
	repo.countFn = func(context.Context, domain.RelationType, domain.RelationFilter) (int64, error) {
		return 0, nil
	}
	if !manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() should be accepted after the cooldown")
	}
	waitIdle(t, manager)

	if got := manager.Status().ConsecutiveFailureCount; got != 0 {
		t.Fatalf("consecutive failures after success = %d, want 0", got)
	}
}

func TestManagerPanicCountsAsFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRelationRepo{
		countFn: func(context.Context, domain.RelationType, domain.RelationFilter) (int64, error) {
			panic("driver bug")
		},
	}
	manager, _ := newTestManager(t, repo, &fakeSender{}, nil)

	if !manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() = false")
	}
	waitIdle(t, manager)

	if got := manager.Status().ConsecutiveFailureCount; got != 1 {
		t.Fatalf("consecutive failures = %d, want 1", got)
	}
	if last := manager.LastRun(); last.Outcome != domain.RunOutcomeFailed {
		t.Fatalf("outcome = %s, want FAILED", last.Outcome)
	}
}

func TestManagerStop(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	repo := tableRepo(300)
	repo.pageFn = func(_ context.Context, batchIndex int, batchSize int) ([]domain.RelationRecord, error) {
		if batchIndex == 0 {
			<-release
		}
		return pageOf(300, batchIndex, batchSize), nil
	}
	sender := &fakeSender{}
	manager, _ := newTestManager(t, repo, sender, nil)

	if manager.Stop() {
		t.Fatal("Stop() = true while idle")
	}

	if !manager.Trigger(RunParams{BatchSize: 100}) {
		t.Fatal("Trigger() = false")
	}
	waitFor(t, func() bool { return repo.pageCalls.Load() == 1 })

	if !manager.Stop() {
		t.Fatal("Stop() = false while running")
	}
	close(release)
	waitIdle(t, manager)

	if got := repo.pageCalls.Load(); got != 1 {
		t.Fatalf("page calls = %d, want 1", got)
	}
	if sender.count() != 0 {
		t.Fatalf("sent = %d, want 0", sender.count())
	}
	last := manager.LastRun()
	if last.Outcome != domain.RunOutcomeCanceled {
		t.Fatalf("outcome = %s, want CANCELED", last.Outcome)
	}
	if manager.Status().ConsecutiveFailureCount != 0 {
		t.Fatal("a stopped run must not count as a failure")
	}

	// The stop flag belongs to the finished run.
	if !manager.Trigger(RunParams{BatchSize: 100}) {
		t.Fatal("Trigger() after stop = false")
	}
	waitIdle(t, manager)
	if manager.LastRun().Outcome != domain.RunOutcomeSucceeded {
		t.Fatalf("outcome = %s, want SUCCEEDED", manager.LastRun().Outcome)
	}
}

func TestManagerShutdownCancelsStuckRun(t *testing.T) {
	t.Parallel()

	repo := tableRepo(100)
	repo.pageFn = func(ctx context.Context, _ int, _ int) ([]domain.RelationRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	manager, _ := newTestManager(t, repo, &fakeSender{}, nil)
	manager.SetGracePeriods(20*time.Millisecond, 20*time.Millisecond)

	if !manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() = false")
	}
	waitFor(t, func() bool { return repo.pageCalls.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	waitIdle(t, manager)

	if last := manager.LastRun(); last == nil || last.Outcome != domain.RunOutcomeCanceled {
		t.Fatalf("last run = %+v", last)
	}
	if got := manager.Status().ConsecutiveFailureCount; got != 0 {
		t.Fatalf("consecutive failures = %d, want 0", got)
	}
	if manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() accepted after shutdown")
	}
	if !manager.Status().ShuttingDown {
		t.Fatal("status should report shutting down")
	}
}

func TestManagerShutdownWhileIdle(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, tableRepo(10), &fakeSender{}, nil)
	if err := manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() accepted after shutdown")
	}
}

func TestManagerRejectsInvalidFilter(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, tableRepo(10), &fakeSender{}, nil)
	from := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	if manager.Trigger(RunParams{Filter: domain.RelationFilter{CreatedFrom: &from, CreatedTo: &to}}) {
		t.Fatal("Trigger() accepted an inverted window")
	}
}

func TestManagerStatusIdle(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, tableRepo(10), &fakeSender{}, nil)
	status := manager.Status()

	if status.IsRunning || status.RunID != "" || status.StartedAt != nil {
		t.Fatalf("status = %+v", status)
	}
	if status.LastProcessedBatchIndex != -1 {
		t.Fatalf("last batch = %d, want -1", status.LastProcessedBatchIndex)
	}
	if status.HumanStatus != "idle (consecutive failures: 0)" {
		t.Fatalf("HumanStatus = %q", status.HumanStatus)
	}
	if status.Timestamp == 0 {
		t.Fatal("Timestamp should be set")
	}
}

func TestManagerLogsCarryRunID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	repo := tableRepo(10)
	engine := newTestEngine(t, repo, &fakeOwnerResolver{}, &fakeSender{}, nil, 1)
	engine.coordinator.logger = zap.New(core)

	manager, err := NewManager(repo, nil, engine.coordinator, nil, zap.New(core))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	manager.newRunID = func() string { return "run-fixed" }

	if !manager.Trigger(RunParams{}) {
		t.Fatal("Trigger() = false")
	}
	waitIdle(t, manager)

	planned := recorded.FilterMessage("sync run planned").All()
	if len(planned) != 1 {
		t.Fatalf("planned entries = %d, want 1", len(planned))
	}
	if got := planned[0].ContextMap()["runId"]; got != "run-fixed" {
		t.Fatalf("runId = %v, want run-fixed", got)
	}
	progress := recorded.FilterMessage("sync progress").All()
	if len(progress) != 1 || progress[0].ContextMap()["runId"] != "run-fixed" {
		t.Fatalf("progress entries = %+v", progress)
	}
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, tableRepo(1), &fakeOwnerResolver{}, &fakeSender{}, nil, 1)
	if _, err := NewManager(nil, nil, engine.coordinator, nil, nil); err == nil {
		t.Fatal("expected error for nil relation repository")
	}
	if _, err := NewManager(tableRepo(1), nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil coordinator")
	}
}
