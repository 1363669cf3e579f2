package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated          = "order_created"
	EventOrderExpired          = "order_expired"
	EventCouponConsumed        = "coupon_consumed"
	EventRegistrationCompleted = "registration_completed"
)

// PaymentEvent is the payload on the payments and receipts topics.
type PaymentEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	CouponCode  string    `json:"coupon_code,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Designation string    `json:"designation,omitempty"`
	Status      string    `json:"status,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Key partitions events of one order together; coupon events fall back to the code.
func (e PaymentEvent) Key() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.CouponCode
}

type Producer struct {
	brokers []string
	writer  *kafka.Writer
	log     zerolog.Logger
}

func NewProducer(brokers []string, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
		log:     log.With().Str("component", "kafka_producer").Logger(),
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.log.Debug().Str("topic", topic).Str("key", key).Msg("published")
	return nil
}

func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := p.Publish(ctx, topic, key, payload)
		if err == nil {
			return nil
		}

		lastErr = err
		p.log.Warn().Err(err).Int("attempt", i+1).Str("topic", topic).Msg("publish failed")

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker; used by the readiness probe.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}
	return nil
}
