package notify

import (
	"context"

	"firebase.google.com/go/v4/messaging"
	"github.com/busspass/busspass/pkg/util"
	"github.com/rs/zerolog/log"
)

// Notification is the queued payload for one topic push.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Topic string `json:"topic"`
}

// Sender is the part of the FCM client used to deliver pushes.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type PushManager struct {
	Messaging Sender
}

// maxBodyLength keeps bodies inside what notification trays display.
const maxBodyLength = 240

func (m *PushManager) SendPush(ctx context.Context, notification Notification) error {
	id, err := m.Messaging.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  util.TrimString(notification.Body, maxBodyLength),
		},
		Topic: notification.Topic,
	})
	if err != nil {
		return err
	}

	log.Info().Str("topic", notification.Topic).Str("id", id).Msg("Sent Push Notification")

	return nil
}
