package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/likesync"
	"github.com/kursadbilgin/like-notify-job/internal/observability"
	"github.com/kursadbilgin/like-notify-job/internal/repository"
	"go.uber.org/zap"
)

const (
	likeNotifyTaskName = "like notification sync"
	recentRunsLimit    = 5
)

// SyncJob is the lifecycle surface of the like-notification run.
type SyncJob interface {
	Trigger(params likesync.RunParams) bool
	Stop() bool
	Status() likesync.Status
}

// SyncRequest carries the optional overrides of a manual trigger. Negative
// values mean "not set".
type SyncRequest struct {
	StartBatch  int
	EndBatch    int
	BatchSize   int
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Operator    string
	Source      string
}

type SyncAck struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

type StopAck struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

type JobStatus struct {
	TaskName string `json:"taskName"`
	likesync.Status
}

type Overview struct {
	LikeNotifySync JobStatus       `json:"likeNotifySync"`
	RecentRuns     []domain.JobRun `json:"recentRuns,omitempty"`
	ServiceName    string          `json:"serviceName"`
	Version        string          `json:"version"`
	Timestamp      int64           `json:"timestamp"`
}

type Health struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Timestamp   int64  `json:"timestamp"`
}

// JobService backs the control surface. Trigger never reports run errors;
// those are only visible through status and overview.
type JobService struct {
	job     SyncJob
	runs    repository.RunRepository
	version string
	logger  *zap.Logger
	now     func() time.Time
}

// NewJobService builds the service. runs may be nil.
func NewJobService(job SyncJob, runs repository.RunRepository, version string, logger *zap.Logger) (*JobService, error) {
	if job == nil {
		return nil, fmt.Errorf("sync job is required")
	}
	if strings.TrimSpace(version) == "" {
		version = "dev"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobService{
		job:     job,
		runs:    runs,
		version: version,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *JobService) TriggerSync(ctx context.Context, req SyncRequest) (SyncAck, error) {
	filter := domain.RelationFilter{CreatedFrom: req.CreatedFrom, CreatedTo: req.CreatedTo}
	if err := filter.Validate(); err != nil {
		return SyncAck{}, err
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "api"
	}

	accepted := s.job.Trigger(likesync.RunParams{
		StartBatch: req.StartBatch,
		EndBatch:   req.EndBatch,
		BatchSize:  req.BatchSize,
		Filter:     filter,
		Source:     source,
		Operator:   strings.TrimSpace(req.Operator),
	})
	if !accepted {
		return SyncAck{Accepted: false, Message: "sync not started: a run is active, the job is shutting down or cooling down after failures"}, nil
	}
	return SyncAck{Accepted: true, Message: "like notification sync started"}, nil
}

func (s *JobService) StopSync(ctx context.Context, operator string) StopAck {
	s.logger.Info("sync stop requested", zap.String("operator", strings.TrimSpace(operator)))
	if !s.job.Stop() {
		return StopAck{Stopped: false, Message: "no sync run is active"}
	}
	return StopAck{Stopped: true, Message: "stop signal sent, the run ends after its current work"}
}

func (s *JobService) LikeNotifyStatus(ctx context.Context) JobStatus {
	status := s.job.Status()
	if status.LastRun == nil {
		status.LastRun = s.latestPersistedRun(ctx)
	}
	return JobStatus{TaskName: likeNotifyTaskName, Status: status}
}

func (s *JobService) Overview(ctx context.Context) Overview {
	overview := Overview{
		LikeNotifySync: s.LikeNotifyStatus(ctx),
		ServiceName:    observability.ServiceName,
		Version:        s.version,
		Timestamp:      s.now().UnixMilli(),
	}

	if s.runs != nil {
		runs, err := s.runs.List(ctx, recentRunsLimit)
		if err != nil {
			s.logger.Warn("failed to load recent sync runs", zap.Error(err))
		} else {
			overview.RecentRuns = runs
		}
	}
	return overview
}

func (s *JobService) Health() Health {
	return Health{
		Status:      "UP",
		ServiceName: observability.ServiceName,
		Timestamp:   s.now().UnixMilli(),
	}
}

// latestPersistedRun covers the window after a restart, before this process
// has finished a run of its own.
func (s *JobService) latestPersistedRun(ctx context.Context) *domain.JobRun {
	if s.runs == nil {
		return nil
	}

	run, err := s.runs.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to load last sync run", zap.Error(err))
		}
		return nil
	}
	return run
}
