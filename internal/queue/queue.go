package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

// Publisher publishes notification messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg NotificationMessage) error
	Close() error
}

const queuePrefix = "notify"

var supportedRelationTypes = []domain.RelationType{
	domain.RelationTypeUserLikeContent,
}

// QueueName returns the work queue for a relation type, e.g. notify.user_like_content.
func QueueName(relationType domain.RelationType) string {
	return fmt.Sprintf("%s.%s", queuePrefix, strings.ToLower(relationType.String()))
}

// DLQName returns the dead-letter queue for a relation type.
func DLQName(relationType domain.RelationType) string {
	return fmt.Sprintf("dlq.%s", QueueName(relationType))
}

func workQueueNames() []string {
	queues := make([]string, 0, len(supportedRelationTypes))
	for _, relationType := range supportedRelationTypes {
		queues = append(queues, QueueName(relationType))
	}
	return queues
}

// isWorkQueue reports whether name is one of the queues declareTopology
// creates. Publishing anywhere else would be dropped by the default exchange.
func isWorkQueue(name string) bool {
	for _, queue := range workQueueNames() {
		if queue == name {
			return true
		}
	}
	return false
}
