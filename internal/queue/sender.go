package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"github.com/kursadbilgin/like-notify-job/internal/provider"
)

var _ provider.Sender = (*QueueSender)(nil)

// QueueSender hands notification requests to the notify service through the
// broker instead of calling it directly. A confirmed publish counts as delivered.
type QueueSender struct {
	publisher Publisher
}

func NewQueueSender(publisher Publisher) (*QueueSender, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &QueueSender{publisher: publisher}, nil
}

func (s *QueueSender) Send(ctx context.Context, req domain.NotificationRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, &provider.SenderError{Message: "invalid notification request", Cause: err}
	}

	msg := MessageFromRequest(req)
	if err := s.publisher.Publish(ctx, QueueName(req.RelateType), msg); err != nil {
		return false, &provider.SenderError{
			Message:   "publish failed",
			Transient: true,
			Cause:     err,
		}
	}

	return true, nil
}
