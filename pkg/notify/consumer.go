package notify

import (
	"context"
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/busspass/busspass/pkg/metrics"
	"github.com/rs/zerolog/log"
)

type NotifyBatchConsumer struct {
	Push *PushManager
}

func NewNotifyBatchConsumer(push *PushManager) *NotifyBatchConsumer {
	return &NotifyBatchConsumer{Push: push}
}

func (c *NotifyBatchConsumer) Consume(batch rmq.Deliveries) {
	for _, delivery := range batch {
		var notification Notification

		if err := json.Unmarshal([]byte(delivery.Payload()), &notification); err != nil || notification.Topic == "" {
			log.Error().Err(err).Str("payload", delivery.Payload()).Msg("Rejecting unreadable notification")
			metrics.NotificationsSent.WithLabelValues("invalid").Inc()
			c.reject(delivery)
			continue
		}

		if err := c.Push.SendPush(context.Background(), notification); err != nil {
			log.Error().Err(err).Str("topic", notification.Topic).Msg("Failed to send push notification")
			metrics.NotificationsSent.WithLabelValues("failed").Inc()
			c.reject(delivery)
			continue
		}

		metrics.NotificationsSent.WithLabelValues("sent").Inc()

		if err := delivery.Ack(); err != nil {
			log.Error().Err(err).Msg("Failed to ack notification")
		}
	}
}

func (c *NotifyBatchConsumer) reject(delivery rmq.Delivery) {
	if err := delivery.Reject(); err != nil {
		log.Error().Err(err).Msg("Failed to reject notification")
	}
}
