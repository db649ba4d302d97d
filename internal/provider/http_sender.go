package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

const defaultSendTimeout = 10 * time.Second

type notifyRequest struct {
	UserID       string `json:"userId"`
	RelateUserID string `json:"relateUserId"`
	RelateType   string `json:"relateType"`
	ContentID    string `json:"contentId"`
	NotifyTime   int64  `json:"notifyTime,omitempty"`
}

// notifyResponse is the notify service's standard envelope.
type notifyResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *bool  `json:"data"`
}

func (r *notifyResponse) accepted() bool {
	return r != nil && r.Code == 0 && r.Data != nil && *r.Data
}

var _ Sender = (*HTTPSender)(nil)

// HTTPSender delivers notification requests to the notify service over HTTP.
type HTTPSender struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPSender(endpoint string) (*HTTPSender, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)

	return NewHTTPSenderWithClient(endpoint, client)
}

func NewHTTPSenderWithClient(endpoint string, client *resty.Client) (*HTTPSender, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("notify endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid notify endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	// Retries belong to the job, not to the transport.
	client.SetRetryCount(0)

	return &HTTPSender{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (s *HTTPSender) Send(ctx context.Context, req domain.NotificationRequest) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("sender is not initialized")
	}
	if err := req.Validate(); err != nil {
		return false, &SenderError{Message: "invalid notification request", Cause: err}
	}

	var envelope notifyResponse
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(notifyRequest{
			UserID:       req.UserID,
			RelateUserID: req.RelateUserID,
			RelateType:   req.RelateType.String(),
			ContentID:    req.ContentID,
			NotifyTime:   req.NotifyTimeMillis(),
		}).
		SetResult(&envelope).
		ForceContentType("application/json").
		Post(s.endpoint)
	if err != nil {
		return false, &SenderError{
			Message:   "notify request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return envelope.accepted(), nil
	}

	return false, &SenderError{
		StatusCode: statusCode,
		Message:    statusMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

func statusMessage(statusCode int, body string) string {
	base := fmt.Sprintf("notify service returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
