package fcm

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
)

type fakeSender struct {
	got *messaging.Message
	err error
}

func (f *fakeSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	f.got = message
	return "projects/p/messages/1", f.err
}

func TestAnnounce(t *testing.T) {
	sender := &fakeSender{}
	c := NewWithSender(sender, "school-digest", zerolog.Nop())

	err := c.Announce(context.Background(), "Weekly School Digest", "3 items", map[string]string{"type": "school_digest"})
	if err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	if sender.got.Topic != "school-digest" || sender.got.Notification.Title != "Weekly School Digest" {
		t.Errorf("message = %+v", sender.got)
	}
	if sender.got.Data["type"] != "school_digest" {
		t.Errorf("data = %v", sender.got.Data)
	}
}

func TestAnnounceError(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := NewWithSender(&fakeSender{err: boom}, "school-digest", zerolog.Nop())

	if err := c.Announce(context.Background(), "t", "b", nil); !errors.Is(err, boom) {
		t.Fatalf("Announce() error = %v, want %v", err, boom)
	}
}
