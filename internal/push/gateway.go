// Package push provides push gateways. Device delivery itself happens
// outside this service: gateways either record the intent or hand it to a
// downstream push worker over Kafka.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/pkg/logger"
)

// Intent is one logical push to a set of device tokens.
type Intent struct {
	ID        string    `json:"id"`
	Tokens    []string  `json:"tokens"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// LogGateway records push intents in the log without contacting devices.
type LogGateway struct{}

// Send implements notification.PushGateway.
func (LogGateway) Send(_ context.Context, tokens []string, title, body string) error {
	logger.Info("push notification recorded",
		zap.Int("devices", len(tokens)),
		zap.String("title", title),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// MessageWriter is the subset of *kafka.Writer the gateway uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaGateway publishes push intents to a topic consumed by a push worker.
type KafkaGateway struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaGateway creates a gateway writing to topic on brokers.
func NewKafkaGateway(brokers []string, topic string) (*KafkaGateway, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaGatewayWithWriter(w), nil
}

// NewKafkaGatewayWithWriter wraps an existing writer.
func NewKafkaGatewayWithWriter(w MessageWriter) *KafkaGateway {
	return &KafkaGateway{writer: w, now: time.Now}
}

// Send implements notification.PushGateway. All tokens travel in one
// message so the push is a single logical operation.
func (g *KafkaGateway) Send(ctx context.Context, tokens []string, title, body string) error {
	intent := Intent{
		ID:        uuid.NewString(),
		Tokens:    tokens,
		Title:     title,
		Body:      body,
		CreatedAt: g.now().UTC(),
	}
	value, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode push intent: %w", err)
	}
	err = g.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(intent.ID),
		Value: value,
		Time:  intent.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("publish push intent: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (g *KafkaGateway) Close() error {
	return g.writer.Close()
}

var (
	_ notification.PushGateway = LogGateway{}
	_ notification.PushGateway = (*KafkaGateway)(nil)
)
