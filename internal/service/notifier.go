package service

import (
	"log/slog"

	"github.com/reliefops/notify-agent/internal/domain/model"
)

// Notifier is the OS-level notification sink fired once per new_* push
// event. The browser permission gate maps to which implementation is wired.
type Notifier interface {
	Notify(item model.NotificationItem)
}

// LogNotifier surfaces native notifications through the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(item model.NotificationItem) {
	n.Logger.Info("native notification",
		"kind", item.Kind.String(),
		"title", item.Title,
		"priority", string(item.Priority),
	)
}

// NoopNotifier drops native notifications (permission not granted).
type NoopNotifier struct{}

func (NoopNotifier) Notify(model.NotificationItem) {}
