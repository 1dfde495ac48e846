package notify

import (
	"context"
	"encoding/json"

	"github.com/adjust/rmq/v5"
)

// QueuePublisher enqueues notifications for the notify consumers.
type QueuePublisher struct {
	Queue rmq.Queue
	Topic string
}

func NewQueuePublisher(connection rmq.Connection, queueName string, topic string) (*QueuePublisher, error) {
	queue, err := connection.OpenQueue(queueName)
	if err != nil {
		return nil, err
	}

	return &QueuePublisher{Queue: queue, Topic: topic}, nil
}

func (p *QueuePublisher) Notify(_ context.Context, notification Notification) error {
	if notification.Topic == "" {
		notification.Topic = p.Topic
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	return p.Queue.PublishBytes(payload)
}
