package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Sender is the part of the messaging client the announcer needs
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client publishes digest announcements to a Firebase Cloud Messaging topic
type Client struct {
	sender Sender
	topic  string
	log    zerolog.Logger
}

// NewClient creates a new FCM client using the provided credentials file
func NewClient(ctx context.Context, credentialsFile, topic string, log zerolog.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Info().Str("topic", topic).Msg("FCM client initialized")
	return NewWithSender(messagingClient, topic, log), nil
}

// NewWithSender creates a Client on top of an existing sender
func NewWithSender(sender Sender, topic string, log zerolog.Logger) *Client {
	return &Client{sender: sender, topic: topic, log: log}
}

// Announce sends a push notification to every device subscribed to the topic
func (c *Client) Announce(ctx context.Context, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Topic: c.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: title,
				Body:  body,
				Icon:  "/icon-192.svg",
			},
		},
	}

	response, err := c.sender.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	c.log.Info().Str("topic", c.topic).Str("message", response).Msg("digest announced")
	return nil
}
