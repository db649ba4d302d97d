package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/service"
	"github.com/kursadbilgin/like-notify-job/internal/transport"
	"go.uber.org/zap"
)

const (
	defaultStartBatch = 0
	defaultEndBatch   = -1
	defaultBatchSize  = -1
)

type JobService interface {
	TriggerSync(ctx context.Context, req service.SyncRequest) (service.SyncAck, error)
	StopSync(ctx context.Context, operator string) service.StopAck
	LikeNotifyStatus(ctx context.Context) service.JobStatus
	Overview(ctx context.Context) service.Overview
	Health() service.Health
}

type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

func NewJobHandler(service JobService, logger *zap.Logger) (*JobHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("job service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{service: service, logger: logger}, nil
}

// RegisterJobRoutes mounts the job routes under /capi/job and an operator
// audited copy under /api/admin/job.
func RegisterJobRoutes(router fiber.Router, service JobService, logger *zap.Logger) error {
	h, err := NewJobHandler(service, logger)
	if err != nil {
		return err
	}

	for _, mount := range []struct {
		prefix string
		admin  bool
	}{
		{prefix: "/capi/job"},
		{prefix: "/api/admin/job", admin: true},
	} {
		group := router.Group(mount.prefix)
		group.Post("/like-notify/sync", h.TriggerSync(mount.admin))
		group.Get("/like-notify/status", h.Status(mount.admin))
		group.Post("/like-notify/stop", h.Stop(mount.admin))
		group.Get("/status/overview", h.Overview(mount.admin))
		group.Get("/health", h.Health(mount.admin))
	}

	return nil
}

func (h *JobHandler) TriggerSync(admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseSyncRequest(c)
		if err != nil {
			return toHTTPError(err)
		}
		req.Source = "api"
		if admin {
			req.Source = "admin"
			req.Operator = h.auditOperator(c, "sync trigger")
		}

		ack, err := h.service.TriggerSync(c.Context(), req)
		if err != nil {
			return toHTTPError(err)
		}
		return transport.Success(c, ack)
	}
}

func (h *JobHandler) Status(admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if admin {
			h.auditOperator(c, "status query")
		}
		return transport.Success(c, h.service.LikeNotifyStatus(c.Context()))
	}
}

func (h *JobHandler) Stop(admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		operator := ""
		if admin {
			operator = h.auditOperator(c, "stop request")
		}
		return transport.Success(c, h.service.StopSync(c.Context(), operator))
	}
}

func (h *JobHandler) Overview(admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if admin {
			h.auditOperator(c, "overview query")
		}
		return transport.Success(c, h.service.Overview(c.Context()))
	}
}

func (h *JobHandler) Health(admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if admin {
			h.auditOperator(c, "health check")
		}
		return transport.Success(c, h.service.Health())
	}
}

func (h *JobHandler) auditOperator(c *fiber.Ctx, action string) string {
	operator := strings.TrimSpace(c.Query("operator"))
	h.logger.Info("admin job action",
		zap.String("action", action),
		zap.String("operator", operator),
		zap.String("ip", c.IP()),
	)
	return operator
}

func parseSyncRequest(c *fiber.Ctx) (service.SyncRequest, error) {
	var req service.SyncRequest
	var err error

	if req.StartBatch, err = parseIntQuery(c, "startBatch", defaultStartBatch); err != nil {
		return req, err
	}
	if req.EndBatch, err = parseIntQuery(c, "endBatch", defaultEndBatch); err != nil {
		return req, err
	}
	if req.BatchSize, err = parseIntQuery(c, "batchSize", defaultBatchSize); err != nil {
		return req, err
	}
	if req.CreatedFrom, err = parseRFC3339Query(c.Query("from"), "from"); err != nil {
		return req, err
	}
	if req.CreatedTo, err = parseRFC3339Query(c.Query("to"), "to"); err != nil {
		return req, err
	}
	return req, nil
}

func parseIntQuery(c *fiber.Ctx, field string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(field))
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, field)
	}
	return v, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
