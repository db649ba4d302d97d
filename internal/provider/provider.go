package provider

import (
	"context"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

// Sender is the outbound notification delivery port. A false result with a nil
// error means the notify service answered but declined the request.
type Sender interface {
	Send(ctx context.Context, req domain.NotificationRequest) (bool, error)
}
