package notification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel is a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

var allChannels = []Channel{ChannelEmail, ChannelPush}

var (
	// ErrDeliveryTimeout is the cause of a DeliveryError when the attempt
	// exceeded its timeout.
	ErrDeliveryTimeout = errors.New("delivery timed out")
	// ErrNoAddress is returned when the recipient has nothing to deliver to
	// on a channel.
	ErrNoAddress = errors.New("recipient has no address for channel")
)

// DeliveryError reports a failed attempt on one channel.
type DeliveryError struct {
	Channel Channel
	Cause   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Cause)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Deliverer sends a rendered message to a recipient over one channel.
type Deliverer interface {
	Channel() Channel
	Deliver(ctx context.Context, to Recipient, msg RenderedMessage) error
}

// Envelope is a single outbound email.
type Envelope struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// MailTransport is the mail-sending collaborator.
type MailTransport interface {
	VerifyConnection(ctx context.Context) error
	Send(ctx context.Context, env Envelope) error
}

// PushGateway delivers one title/body pair to a set of device tokens as a
// single logical operation.
type PushGateway interface {
	Send(ctx context.Context, tokens []string, title, body string) error
}

// EmailChannel delivers through a MailTransport.
type EmailChannel struct {
	transport MailTransport
	from      string
	timeout   time.Duration
}

// NewEmailChannel creates an email channel. Each attempt is bounded by timeout.
func NewEmailChannel(transport MailTransport, from string, timeout time.Duration) *EmailChannel {
	return &EmailChannel{transport: transport, from: from, timeout: timeout}
}

// Channel implements Deliverer.
func (c *EmailChannel) Channel() Channel { return ChannelEmail }

// Deliver sends msg to the recipient's address.
func (c *EmailChannel) Deliver(ctx context.Context, to Recipient, msg RenderedMessage) error {
	if to.Email == "" {
		return &DeliveryError{Channel: ChannelEmail, Cause: ErrNoAddress}
	}
	env := Envelope{
		From:    c.from,
		To:      to.Email,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	err := withTimeout(ctx, c.timeout, func(ctx context.Context) error {
		return c.transport.Send(ctx, env)
	})
	if err != nil {
		return &DeliveryError{Channel: ChannelEmail, Cause: err}
	}
	return nil
}

// PushChannel delivers through a PushGateway.
type PushChannel struct {
	gateway PushGateway
	timeout time.Duration
}

// NewPushChannel creates a push channel. Each attempt is bounded by timeout.
func NewPushChannel(gateway PushGateway, timeout time.Duration) *PushChannel {
	return &PushChannel{gateway: gateway, timeout: timeout}
}

// Channel implements Deliverer.
func (c *PushChannel) Channel() Channel { return ChannelPush }

// Deliver sends the subject and plain-text body to all device tokens.
func (c *PushChannel) Deliver(ctx context.Context, to Recipient, msg RenderedMessage) error {
	tokens := to.Tokens()
	if len(tokens) == 0 {
		return &DeliveryError{Channel: ChannelPush, Cause: ErrNoAddress}
	}
	err := withTimeout(ctx, c.timeout, func(ctx context.Context) error {
		return c.gateway.Send(ctx, tokens, msg.Subject, msg.Text)
	})
	if err != nil {
		return &DeliveryError{Channel: ChannelPush, Cause: err}
	}
	return nil
}

// withTimeout runs fn under a deadline and returns ErrDeliveryTimeout once
// it passes, even if fn ignores its context.
func withTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	// The caller returns at the deadline. fn keeps running until it observes
	// ctx or returns; the buffered channel lets it exit without a reader.
	go func() { //nolint:naked-goroutine // lifetime is owned by fn
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %v", ErrDeliveryTimeout, timeout, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrDeliveryTimeout, timeout)
		}
		return ctx.Err()
	}
}
