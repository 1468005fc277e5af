package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/pkg/logger"
	"xixu.io/notifier/internal/pkg/worker"
)

// TemplateSource resolves templates by kind.
type TemplateSource interface {
	Get(kind Kind) (Template, error)
}

// DispatcherDeps holds the collaborators of a Dispatcher.
type DispatcherDeps struct {
	Templates TemplateSource
	Channels  []Deliverer
	Events    EventSink
	Logs      LogSink
	// Pool runs channel attempts concurrently. Nil runs them in order on the
	// calling goroutine.
	Pool *worker.Pool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Dispatcher runs the notification pipeline for single requests.
type Dispatcher struct {
	templates TemplateSource
	channels  map[Channel]Deliverer
	events    EventSink
	logs      LogSink
	pool      *worker.Pool
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. Events and Logs may be nil.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	channels := make(map[Channel]Deliverer, len(deps.Channels))
	for _, ch := range deps.Channels {
		channels[ch.Channel()] = ch
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		templates: deps.Templates,
		channels:  channels,
		events:    deps.Events,
		logs:      deps.Logs,
		pool:      deps.Pool,
		now:       now,
	}
}

// Send dispatches one notification.
//
// The returned Result lists every channel the preference gate allowed along
// with its outcome; a dispatch where all channels failed still returns a nil
// error. Only a failed template lookup returns an error, and nothing is
// delivered, emitted or logged in that case.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Result, error) {
	tmpl, err := d.templates.Get(req.Kind)
	if err != nil {
		logger.Error("notification dispatch aborted",
			zap.String("kind", string(req.Kind)),
			zap.String("recipient", req.Recipient.ID),
			zap.Error(err),
		)
		return nil, err
	}

	msg := Render(tmpl, req.Data)
	channels := d.deliver(ctx, req.Recipient, msg, AllowedChannels(req.Recipient))

	result := &Result{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		RecipientID: req.Recipient.ID,
		Subject:     msg.Subject,
		Channels:    channels,
		SentAt:      d.now().UTC(),
	}

	if d.events != nil {
		d.events.Emit(ctx, Event{
			Type:           EventNotificationSent,
			NotificationID: result.ID,
			Kind:           result.Kind,
			RecipientID:    result.RecipientID,
			Subject:        result.Subject,
			Timestamp:      result.SentAt,
		})
	}

	if d.logs != nil {
		entry := LogEntry{
			NotificationID: result.ID,
			Kind:           result.Kind,
			RecipientID:    result.RecipientID,
			Subject:        result.Subject,
			Channels:       result.Channels,
			CreatedAt:      result.SentAt,
		}
		if err := d.logs.Record(ctx, entry); err != nil {
			logger.Warn("failed to record notification log",
				zap.String("notification_id", result.ID),
				zap.Error(err),
			)
		}
	}

	if failed := result.Failures(); len(failed) > 0 {
		logger.Warn("notification delivered partially",
			zap.String("notification_id", result.ID),
			zap.String("kind", string(result.Kind)),
			zap.String("recipient", result.RecipientID),
			zap.Int("failed_channels", len(failed)),
			zap.Int("channels", len(result.Channels)),
		)
	}

	return result, nil
}

// deliver attempts every allowed channel. Results keep the order of allowed.
func (d *Dispatcher) deliver(ctx context.Context, to Recipient, msg RenderedMessage, allowed []Channel) []ChannelResult {
	results := make([]ChannelResult, len(allowed))
	var wg sync.WaitGroup

	for i, ch := range allowed {
		deliverer, ok := d.channels[ch]
		if !ok {
			results[i] = ChannelResult{Channel: ch, Status: StatusSkipped, Reason: "channel not configured"}
			continue
		}

		attempt := func(ctx context.Context) {
			results[i] = attemptChannel(ctx, deliverer, to, msg)
		}
		if d.pool == nil || len(allowed) == 1 {
			attempt(ctx)
			continue
		}

		// The pool must not drop the task on cancellation or wg never
		// drains; the attempt itself still honours ctx.
		wg.Add(1)
		err := d.pool.Submit(context.WithoutCancel(ctx), func(context.Context) {
			defer wg.Done()
			attempt(ctx)
		})
		if err != nil {
			// The task never ran, so Done is ours to call.
			wg.Done()
			results[i] = ChannelResult{
				Channel: ch,
				Status:  StatusFailed,
				Err:     &DeliveryError{Channel: ch, Cause: err},
				Reason:  fmt.Sprintf("submit to %s pool: %v", d.pool.Name(), err),
			}
		}
	}

	wg.Wait()
	return results
}

func attemptChannel(ctx context.Context, deliverer Deliverer, to Recipient, msg RenderedMessage) ChannelResult {
	ch := deliverer.Channel()
	err := deliverer.Deliver(ctx, to, msg)
	switch {
	case err == nil:
		return ChannelResult{Channel: ch, Status: StatusDelivered}
	case errors.Is(err, ErrNoAddress):
		return ChannelResult{Channel: ch, Status: StatusSkipped, Reason: ErrNoAddress.Error()}
	default:
		logger.Warn("notification channel failed",
			zap.String("channel", string(ch)),
			zap.String("recipient", to.ID),
			zap.Error(err),
		)
		return ChannelResult{Channel: ch, Status: StatusFailed, Err: err, Reason: err.Error()}
	}
}
