package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
)

// EventNotificationSent is emitted once per completed dispatch.
const EventNotificationSent = "notificationSent"

// Event is what the dispatcher emits after a dispatch.
type Event struct {
	Type           string    `json:"type"`
	NotificationID string    `json:"notification_id"`
	Kind           Kind      `json:"kind"`
	RecipientID    string    `json:"recipient_id"`
	Subject        string    `json:"subject"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventSink receives dispatch events. Emit must not block the dispatch on
// slow subscribers for long; failures are the sink's concern.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// EventHandler handles one emitted event.
type EventHandler func(ctx context.Context, event Event) error

// Emitter fans events out to subscribers in registration order.
// Subscribe during startup; Emit is safe for concurrent use.
type Emitter struct {
	mu       sync.RWMutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   EventHandler
}

// NewEmitter creates an emitter without subscribers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a handler under a name used in logs.
func (e *Emitter) Subscribe(name string, fn EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, namedHandler{name: name, fn: fn})
}

// Emit calls every handler. A failing handler is logged and the remaining
// handlers still run.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()

	for _, h := range handlers {
		if err := h.fn(ctx, event); err != nil {
			logger.Warn("event subscriber failed",
				zap.String("subscriber", h.name),
				zap.String("event_type", event.Type),
				zap.String("notification_id", event.NotificationID),
				zap.Error(err),
			)
		}
	}
}

var _ EventSink = (*Emitter)(nil)
