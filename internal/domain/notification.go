package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationRequest asks the notify service to tell UserID that RelateUserID
// acted on ContentID.
type NotificationRequest struct {
	UserID       string
	RelateUserID string
	RelateType   RelationType
	ContentID    string
	NotifyTime   *time.Time
}

func (r *NotificationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if strings.TrimSpace(r.RelateUserID) == "" {
		return fmt.Errorf("%w: relateUserId is required", ErrValidation)
	}
	if strings.TrimSpace(r.ContentID) == "" {
		return fmt.Errorf("%w: contentId is required", ErrValidation)
	}
	if !r.RelateType.IsValid() {
		return fmt.Errorf("%w: invalid relate type %q", ErrValidation, r.RelateType)
	}
	return nil
}

// NotifyTimeMillis returns the notify time as epoch milliseconds, zero when unset.
func (r *NotificationRequest) NotifyTimeMillis() int64 {
	if r.NotifyTime == nil {
		return 0
	}
	return r.NotifyTime.UnixMilli()
}
