// Package notification implements the notification pipeline of the training
// platform: template lookup, personalization, the recipient preference gate,
// per-channel delivery, event emission and dispatch logging.
//
// Dispatch is best-effort: a channel failure is recorded in the Result and
// never aborts the other channels. Only a missing template fails a dispatch.
package notification

import (
	"time"
)

// Kind identifies a notification template.
type Kind string

// Notification kinds known to the platform.
const (
	KindWelcome            Kind = "WELCOME"
	KindTrainingReminder   Kind = "TRAINING_REMINDER"
	KindCertificateExpiry  Kind = "CERTIFICATE_EXPIRY"
	KindTrainingCompletion Kind = "TRAINING_COMPLETION"
	KindMentorshipSession  Kind = "MENTORSHIP_SESSION"
	KindWeeklyReport       Kind = "WEEKLY_REPORT"
)

// Data maps placeholder names to values. Values are strings or numbers;
// anything else is stringified on a best-effort basis.
type Data map[string]any

// Request is a single notification to dispatch.
type Request struct {
	Kind      Kind
	Recipient Recipient
	Data      Data
}

// RenderedMessage is a personalized template, ready for delivery.
type RenderedMessage struct {
	Subject string
	HTML    string
	// Text is the HTML body with markup stripped.
	Text string
}

// DeliveryStatus is the outcome of one channel attempt.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
	StatusSkipped   DeliveryStatus = "SKIPPED"
)

// ChannelResult records what happened on one channel.
type ChannelResult struct {
	Channel Channel        `json:"channel"`
	Status  DeliveryStatus `json:"status"`
	// Err is set when Status is StatusFailed.
	Err error `json:"-"`
	// Reason explains a skip, or carries Err's message for serialization.
	Reason string `json:"reason,omitempty"`
}

// Result summarizes a completed dispatch.
type Result struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	RecipientID string          `json:"recipient_id"`
	Subject     string          `json:"subject"`
	Channels    []ChannelResult `json:"channels"`
	SentAt      time.Time       `json:"sent_at"`
}

// Delivered reports whether at least one channel delivered the message.
func (r *Result) Delivered() bool {
	for _, c := range r.Channels {
		if c.Status == StatusDelivered {
			return true
		}
	}
	return false
}

// Failures returns the failed channel results.
func (r *Result) Failures() []ChannelResult {
	var out []ChannelResult
	for _, c := range r.Channels {
		if c.Status == StatusFailed {
			out = append(out, c)
		}
	}
	return out
}

// Channel returns the result for ch, if that channel was considered.
func (r *Result) Channel(ch Channel) (ChannelResult, bool) {
	for _, c := range r.Channels {
		if c.Channel == ch {
			return c, true
		}
	}
	return ChannelResult{}, false
}
