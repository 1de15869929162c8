package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/blenvi/blenvi/internal/service/account"
)

type publishRecorder struct {
	topics []string
	types  []string
	data   []any
	err    error
}

func (p *publishRecorder) Publish(topic, eventType string, data any) error {
	p.topics = append(p.topics, topic)
	p.types = append(p.types, eventType)
	p.data = append(p.data, data)
	return p.err
}

func TestHubNotifierPublishesOnUserTopic(t *testing.T) {
	rec := &publishRecorder{}
	n := NewHubNotifier(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.Notify("u-1", account.Notification{Kind: account.KindSuccess, Message: account.MsgSaveSucceeded})

	if len(rec.topics) != 1 || rec.topics[0] != "user:u-1" {
		t.Fatalf("unexpected topics %v", rec.topics)
	}
	if rec.types[0] != EventNotification {
		t.Fatalf("expected %q event, got %q", EventNotification, rec.types[0])
	}
	got, ok := rec.data[0].(account.Notification)
	if !ok || got.Message != account.MsgSaveSucceeded {
		t.Fatalf("unexpected payload %#v", rec.data[0])
	}
}

func TestHubNotifierIgnoresAnonymousAndErrors(t *testing.T) {
	rec := &publishRecorder{err: errors.New("hub closed")}
	n := NewHubNotifier(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.Notify("", account.Notification{Kind: account.KindError, Message: "x"})
	if len(rec.topics) != 0 {
		t.Fatalf("expected no publish without user id")
	}
	n.Notify("u-2", account.Notification{Kind: account.KindError, Message: "x"})
	if len(rec.topics) != 1 {
		t.Fatalf("expected publish attempt, got %d", len(rec.topics))
	}

	var nilNotifier *HubNotifier
	nilNotifier.Notify("u-3", account.Notification{})
}
