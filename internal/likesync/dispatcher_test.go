package likesync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

func requestsOf(n int) []domain.NotificationRequest {
	requests := make([]domain.NotificationRequest, 0, n)
	for i := 0; i < n; i++ {
		requests = append(requests, domain.NotificationRequest{
			UserID:       fmt.Sprintf("owner-%d", i),
			RelateUserID: fmt.Sprintf("u%d", i),
			RelateType:   domain.RelationTypeUserLikeContent,
			ContentID:    fmt.Sprintf("c%d", i),
		})
	}
	return requests
}

func newTestDispatcher(t *testing.T, sender *fakeSender, limiter *fakeLimiter, guard *MemoryGuard) (*NotificationDispatcher, *[]time.Duration) {
	t.Helper()

	var dispatcher *NotificationDispatcher
	var err error
	if limiter != nil {
		dispatcher, err = NewNotificationDispatcher(sender, limiter, guard, nil)
	} else {
		dispatcher, err = NewNotificationDispatcher(sender, nil, guard, nil)
	}
	if err != nil {
		t.Fatalf("NewNotificationDispatcher() error = %v", err)
	}

	var pauses []time.Duration
	dispatcher.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	return dispatcher, &pauses
}

func TestNotificationDispatcherPacesSubBatches(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	dispatcher, pauses := newTestDispatcher(t, sender, nil, nil)

	report := dispatcher.Dispatch(context.Background(), neverStop, requestsOf(45))

	if report != (DispatchReport{Attempted: 45, Succeeded: 45}) {
		t.Fatalf("report = %+v", report)
	}
	if len(*pauses) != 2 {
		t.Fatalf("pauses = %d, want 2", len(*pauses))
	}
	for _, d := range *pauses {
		if d != 100*time.Millisecond {
			t.Fatalf("pause = %v, want 100ms", d)
		}
	}
	if sender.count() != 45 {
		t.Fatalf("sent = %d, want 45", sender.count())
	}
}

func TestNotificationDispatcherCountsFailures(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{
		sendFn: func(_ context.Context, req domain.NotificationRequest) (bool, error) {
			switch req.ContentID {
			case "c1":
				return false, errors.New("503")
			case "c2":
				return false, nil
			case "c3":
				panic("codec")
			}
			return true, nil
		},
	}
	dispatcher, _ := newTestDispatcher(t, sender, nil, nil)

	report := dispatcher.Dispatch(context.Background(), neverStop, requestsOf(25))

	if report.Attempted != 25 || report.Succeeded != 22 || report.Failed != 3 {
		t.Fatalf("report = %+v", report)
	}
	if report.Stopped {
		t.Fatal("report should not be stopped")
	}
}

func TestNotificationDispatcherStopsBetweenSubBatches(t *testing.T) {
	t.Parallel()

	var stop atomic.Bool
	sender := &fakeSender{
		sendFn: func(_ context.Context, req domain.NotificationRequest) (bool, error) {
			if req.ContentID == "c19" {
				stop.Store(true)
			}
			return true, nil
		},
	}
	dispatcher, pauses := newTestDispatcher(t, sender, nil, nil)

	report := dispatcher.Dispatch(context.Background(), stop.Load, requestsOf(60))

	if !report.Stopped {
		t.Fatal("report should be stopped")
	}
	if report.Attempted != 20 || report.Succeeded != 20 {
		t.Fatalf("report = %+v", report)
	}
	if len(*pauses) != 0 {
		t.Fatalf("pauses = %d, want 0 after stop", len(*pauses))
	}
}

func TestNotificationDispatcherWaitsOnRateLimiter(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{
		waitFn: func(_ context.Context, scope string) error {
			if scope != "user_like_content" {
				return fmt.Errorf("unexpected scope %s", scope)
			}
			return nil
		},
	}
	sender := &fakeSender{}
	dispatcher, _ := newTestDispatcher(t, sender, limiter, nil)

	report := dispatcher.Dispatch(context.Background(), neverStop, requestsOf(30))

	if report.Succeeded != 30 {
		t.Fatalf("report = %+v", report)
	}
	if got := limiter.waits.Load(); got != 30 {
		t.Fatalf("limiter waits = %d, want 30", got)
	}
}

func TestNotificationDispatcherSendsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	limiter := &fakeLimiter{
		waitFn: func(context.Context, string) error { return errors.New("redis down") },
	}
	sender := &fakeSender{}
	dispatcher, _ := newTestDispatcher(t, sender, limiter, nil)

	report := dispatcher.Dispatch(context.Background(), neverStop, requestsOf(3))
	if report.Succeeded != 3 {
		t.Fatalf("report = %+v", report)
	}
}

func TestNotificationDispatcherCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &fakeSender{}
	dispatcher, _ := newTestDispatcher(t, sender, nil, nil)

	report := dispatcher.Dispatch(ctx, neverStop, requestsOf(5))
	if !report.Stopped || report.Attempted != 0 {
		t.Fatalf("report = %+v", report)
	}
	if sender.count() != 0 {
		t.Fatalf("sent = %d, want 0", sender.count())
	}
}

func TestNotificationDispatcherConsultsMemoryGuard(t *testing.T) {
	t.Parallel()

	var samples atomic.Int64
	guard := NewMemoryGuard(0, 0, nil)
	guard.sample = func() MemorySample {
		samples.Add(1)
		return MemorySample{}
	}
	dispatcher, _ := newTestDispatcher(t, &fakeSender{}, nil, guard)

	// 12 sub-batches: the guard runs before the 6th and the 11th.
	dispatcher.Dispatch(context.Background(), neverStop, requestsOf(240))

	if got := samples.Load(); got != 2 {
		t.Fatalf("memory samples = %d, want 2", got)
	}
}

func TestNewNotificationDispatcherRequiresSender(t *testing.T) {
	t.Parallel()

	if _, err := NewNotificationDispatcher(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil sender")
	}
}
