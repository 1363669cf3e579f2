package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader used by Consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   MessageReader
	log      zerolog.Logger
	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, groupID, topic string, log zerolog.Logger) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}), log)
}

func NewConsumerWithReader(reader MessageReader, log zerolog.Logger) *Consumer {
	return &Consumer{reader: reader, log: log, attempts: 3, backoff: time.Second}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume runs handler for every message until ctx is done. A message whose
// handler still fails after the last attempt is logged and committed so one
// bad event cannot stall the partition.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("dropping message after retries")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(context.Context, kafka.Message) error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == c.attempts {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Int64("offset", msg.Offset).Msg("handler failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

// EventHandler adapts a PaymentEvent handler for Consume. Undecodable messages
// and events of other types are logged and skipped.
func EventHandler(log zerolog.Logger, eventType string, handle func(context.Context, PaymentEvent) error) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var event PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("decode event")
			return nil
		}
		if event.Type != eventType {
			return nil
		}
		return handle(ctx, event)
	}
}
