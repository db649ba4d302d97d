package service

import (
	"context"
	"sync"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/likesync"
)

type fakeSyncJob struct {
	triggerFn func(params likesync.RunParams) bool
	stopFn    func() bool
	status    likesync.Status

	mu       sync.Mutex
	triggers []likesync.RunParams
}

func (f *fakeSyncJob) Trigger(params likesync.RunParams) bool {
	f.mu.Lock()
	f.triggers = append(f.triggers, params)
	f.mu.Unlock()

	if f.triggerFn != nil {
		return f.triggerFn(params)
	}
	return true
}

func (f *fakeSyncJob) Stop() bool {
	if f.stopFn != nil {
		return f.stopFn()
	}
	return false
}

func (f *fakeSyncJob) Status() likesync.Status {
	return f.status
}

func (f *fakeSyncJob) triggered() []likesync.RunParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]likesync.RunParams(nil), f.triggers...)
}

type fakeRunRepo struct {
	latestFn func(ctx context.Context) (*domain.JobRun, error)
	listFn   func(ctx context.Context, limit int) ([]domain.JobRun, error)
}

func (f *fakeRunRepo) Create(ctx context.Context, run *domain.JobRun) error {
	return nil
}

func (f *fakeRunRepo) Latest(ctx context.Context) (*domain.JobRun, error) {
	if f.latestFn != nil {
		return f.latestFn(ctx)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRunRepo) List(ctx context.Context, limit int) ([]domain.JobRun, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit)
	}
	return nil, nil
}
