package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes when the watched mailbox changes
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// FetchTrigger queues a fetch run
type FetchTrigger interface {
	TriggerFetch(reason string) bool
}

// MailboxWatcher registers the mailbox for push notifications. Gmail watches expire
// after seven days, so the service renews it daily.
type MailboxWatcher interface {
	Watch(ctx context.Context, topicName string) (uint64, error)
	Stop(ctx context.Context) error
}

// Service turns Gmail Pub/Sub push notifications into fetch runs
type Service struct {
	pubsubClient *pubsub.Client
	trigger      FetchTrigger
	watcher      MailboxWatcher
	projectID    string
	topicName    string
	subName      string
	log          zerolog.Logger

	mu sync.Mutex
	// last historyId per mailbox, to drop redelivered and out-of-order notifications
	lastHistoryID map[string]uint64
}

// NewService creates the Pub/Sub client. watcher may be nil when the mailbox watch is
// managed elsewhere.
func NewService(ctx context.Context, projectID, topicName, subName string, trigger FetchTrigger, watcher MailboxWatcher, credentialsFile string, log zerolog.Logger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Accept the full resource name as well as the short topic name
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}

	s := newService(trigger, watcher, log)
	s.pubsubClient = client
	s.projectID = projectID
	s.topicName = topicName
	s.subName = subName
	if s.subName == "" {
		s.subName = topicName + "-sub" // Convention: topic-sub
	}
	return s, nil
}

func newService(trigger FetchTrigger, watcher MailboxWatcher, log zerolog.Logger) *Service {
	return &Service{
		trigger:       trigger,
		watcher:       watcher,
		log:           log,
		lastHistoryID: make(map[string]uint64),
	}
}

// Start ensures the subscription exists and blocks receiving messages until ctx is done
func (s *Service) Start(ctx context.Context) error {
	s.log.Info().Str("topic", s.topicName).Str("subscription", s.subName).Msg("starting notification service")

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check topic: %w", err)
		}
		if !topicExists {
			return fmt.Errorf("pubsub topic %s does not exist", s.topicName)
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		s.log.Info().Str("subscription", s.subName).Msg("created subscription")
	}

	if s.watcher != nil {
		go s.renewWatch(ctx)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.HandlePayload(msg.Data)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("error receiving messages: %w", err)
	}
	return nil
}

// Close releases the Pub/Sub client and stops the mailbox watch
func (s *Service) Close(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to stop mailbox watch")
		}
	}
	return s.pubsubClient.Close()
}

// HandlePayload processes one notification. It reports whether a fetch was queued.
func (s *Service) HandlePayload(data []byte) bool {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		s.log.Warn().Err(err).Msg("failed to unmarshal notification")
		return false
	}

	log := s.log.With().Str("email", notification.EmailAddress).Uint64("history_id", notification.HistoryID).Logger()

	s.mu.Lock()
	last, seen := s.lastHistoryID[notification.EmailAddress]
	if seen && notification.HistoryID <= last {
		s.mu.Unlock()
		log.Debug().Uint64("last_history_id", last).Msg("skipping duplicate notification")
		return false
	}
	s.lastHistoryID[notification.EmailAddress] = notification.HistoryID
	s.mu.Unlock()

	if !s.trigger.TriggerFetch("push") {
		log.Debug().Msg("fetch already queued")
		return false
	}
	log.Info().Msg("mailbox changed, fetch queued")
	return true
}

func (s *Service) renewWatch(ctx context.Context) {
	topic := fmt.Sprintf("projects/%s/topics/%s", s.projectID, s.topicName)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if _, err := s.watcher.Watch(ctx, topic); err != nil {
			s.log.Error().Err(err).Msg("failed to renew mailbox watch")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
