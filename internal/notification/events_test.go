package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_FailingSubscriberDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	e := NewEmitter()
	var got []string
	e.Subscribe("first", func(_ context.Context, ev Event) error {
		got = append(got, "first:"+ev.NotificationID)
		return errors.New("redis unavailable")
	})
	e.Subscribe("second", func(_ context.Context, ev Event) error {
		got = append(got, "second:"+ev.NotificationID)
		return nil
	})

	e.Emit(context.Background(), Event{
		Type:           EventNotificationSent,
		NotificationID: "n-1",
		Timestamp:      time.Now(),
	})

	assert.Equal(t, []string{"first:n-1", "second:n-1"}, got)
}

func TestEmitter_NoSubscribers(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		NewEmitter().Emit(context.Background(), Event{Type: EventNotificationSent})
	})
}

func TestMultiLogSink_JoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &recordingLogs{}
	bad := &recordingLogs{err: errors.New("insert failed")}
	sink := MultiLogSink{ZapLogSink{}, bad, ok}

	err := sink.Record(context.Background(), LogEntry{NotificationID: "n-1"})
	assert.ErrorContains(t, err, "insert failed")
	assert.Len(t, ok.entries, 1)
	assert.Len(t, bad.entries, 1)
}
