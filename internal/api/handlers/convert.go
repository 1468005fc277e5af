package handlers

import (
	"time"

	"xixu.io/notifier/internal/notification"
)

type channelResultItem struct {
	Channel notification.Channel        `json:"channel"`
	Status  notification.DeliveryStatus `json:"status"`
	Reason  string                      `json:"reason,omitempty"`
}

type dispatchResult struct {
	ID          string              `json:"id"`
	Kind        notification.Kind   `json:"kind"`
	RecipientID string              `json:"recipient_id"`
	Subject     string              `json:"subject"`
	Delivered   bool                `json:"delivered"`
	Channels    []channelResultItem `json:"channels"`
	SentAt      time.Time           `json:"sent_at"`
}

type dispatchLogItem struct {
	NotificationID string              `json:"notification_id"`
	Kind           notification.Kind   `json:"kind"`
	Subject        string              `json:"subject"`
	Channels       []channelResultItem `json:"channels"`
	CreatedAt      time.Time           `json:"created_at"`
}

func channelsToAPI(in []notification.ChannelResult) []channelResultItem {
	out := make([]channelResultItem, 0, len(in))
	for _, c := range in {
		reason := c.Reason
		if reason == "" && c.Err != nil {
			reason = c.Err.Error()
		}
		out = append(out, channelResultItem{Channel: c.Channel, Status: c.Status, Reason: reason})
	}
	return out
}

func resultToAPI(r *notification.Result) dispatchResult {
	return dispatchResult{
		ID:          r.ID,
		Kind:        r.Kind,
		RecipientID: r.RecipientID,
		Subject:     r.Subject,
		Delivered:   r.Delivered(),
		Channels:    channelsToAPI(r.Channels),
		SentAt:      r.SentAt,
	}
}

func dispatchLogToAPI(e notification.LogEntry) dispatchLogItem {
	return dispatchLogItem{
		NotificationID: e.NotificationID,
		Kind:           e.Kind,
		Subject:        e.Subject,
		Channels:       channelsToAPI(e.Channels),
		CreatedAt:      e.CreatedAt,
	}
}
