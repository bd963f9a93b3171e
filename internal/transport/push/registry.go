package push

import (
	"sync"

	"github.com/reliefops/notify-agent/internal/domain/model"
)

// Handler consumes a single inbound frame. Handlers for the same event type
// run in registration order on the read loop's goroutine.
type Handler func(frame model.Frame)

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	eventType string
	id        uint64
}

type entry struct {
	id uint64
	fn Handler
}

// Registry is the typed subscriber registry keyed by event type.
type Registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]entry
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]entry)}
}

// On registers a handler for the given event type. Multiple handlers per type
// are permitted.
func (r *Registry) On(eventType string, fn Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.handlers[eventType] = append(r.handlers[eventType], entry{id: r.nextID, fn: fn})
	return Subscription{eventType: eventType, id: r.nextID}
}

// Off removes a previously registered handler. Removing an unknown
// subscription is a silent no-op.
func (r *Registry) Off(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[sub.eventType]
	for i, e := range entries {
		if e.id == sub.id {
			r.handlers[sub.eventType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for the frame's type, in
// registration order.
func (r *Registry) Dispatch(frame model.Frame) {
	r.mu.RLock()
	entries := r.handlers[frame.Type]
	fns := make([]Handler, len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(frame)
	}
}

// Clear drops every registered handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]entry)
}
