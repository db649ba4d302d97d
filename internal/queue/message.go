package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

// NotificationMessage is the broker payload consumed by the notify service.
type NotificationMessage struct {
	UserID       string              `json:"userId"`
	RelateUserID string              `json:"relateUserId"`
	RelateType   domain.RelationType `json:"relateType"`
	ContentID    string              `json:"contentId"`
	NotifyTime   int64               `json:"notifyTime,omitempty"`
}

func MessageFromRequest(req domain.NotificationRequest) NotificationMessage {
	return NotificationMessage{
		UserID:       req.UserID,
		RelateUserID: req.RelateUserID,
		RelateType:   req.RelateType,
		ContentID:    req.ContentID,
		NotifyTime:   req.NotifyTimeMillis(),
	}
}

// MessageID identifies one notification for broker-side deduplication.
func (m NotificationMessage) MessageID() string {
	return fmt.Sprintf("%s:%s:%s", m.RelateType, m.RelateUserID, m.ContentID)
}

func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if strings.TrimSpace(m.RelateUserID) == "" {
		return fmt.Errorf("relateUserId is required")
	}
	if strings.TrimSpace(m.ContentID) == "" {
		return fmt.Errorf("contentId is required")
	}
	if !m.RelateType.IsValid() {
		return fmt.Errorf("invalid relate type %q", m.RelateType)
	}
	return nil
}
