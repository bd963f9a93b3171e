package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reliefops/notify-agent/internal/domain/model"
)

// ToastRack holds the ephemeral toast list. Each toast self-destructs after
// the TTL; Dismiss is idempotent so manual dismissal racing the timer is
// safe.
type ToastRack struct {
	mu     sync.Mutex
	ttl    time.Duration
	toasts []model.Toast
	timers map[string]*time.Timer
}

func NewToastRack(ttl time.Duration) *ToastRack {
	return &ToastRack{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
	}
}

// Push creates a toast for the item and schedules its removal.
func (t *ToastRack) Push(item model.NotificationItem) model.Toast {
	toast := model.Toast{
		ID:        uuid.NewString(),
		Kind:      item.Kind,
		Title:     item.Title,
		Message:   item.Message,
		Priority:  item.Priority,
		CreatedAt: time.Now().UnixMilli(),
	}

	t.mu.Lock()
	t.toasts = append(t.toasts, toast)
	t.timers[toast.ID] = time.AfterFunc(t.ttl, func() {
		t.Dismiss(toast.ID)
	})
	t.mu.Unlock()

	return toast
}

// Dismiss removes a toast by id; removing an absent id is a no-op.
func (t *ToastRack) Dismiss(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	for i := range t.toasts {
		if t.toasts[i].ID == id {
			t.toasts = append(t.toasts[:i:i], t.toasts[i+1:]...)
			return
		}
	}
}

// List returns a copy of the live toasts in creation order.
func (t *ToastRack) List() []model.Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Toast, len(t.toasts))
	copy(out, t.toasts)
	return out
}

// Stop cancels every pending dismissal timer.
func (t *ToastRack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
