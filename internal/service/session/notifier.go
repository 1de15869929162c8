package session

import (
	"log/slog"

	"github.com/blenvi/blenvi/internal/service/account"
	"github.com/blenvi/blenvi/internal/ws"
)

// EventNotification is the hub event type carrying account notifications.
const EventNotification = "notification"

// Publisher is the subset of the hub used to deliver notifications.
type Publisher interface {
	Publish(topic, eventType string, data any) error
}

// HubNotifier forwards account notifications to the user's event topic.
type HubNotifier struct {
	hub    Publisher
	logger *slog.Logger
}

// NewHubNotifier returns a notifier publishing through hub.
func NewHubNotifier(hub Publisher, logger *slog.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

// Notify publishes n. Delivery failures are logged and dropped.
func (h *HubNotifier) Notify(userID string, n account.Notification) {
	if h == nil || h.hub == nil || userID == "" {
		return
	}
	if err := h.hub.Publish(ws.UserTopic(userID), EventNotification, n); err != nil {
		h.logger.Warn("notification publish failed", "user_id", userID, "kind", n.Kind, "error", err)
	}
}
