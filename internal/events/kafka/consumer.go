package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded event. Returning an error leaves the
// message uncommitted so the consumer group redelivers it.
type Handler func(ctx context.Context, event domain.TransactionEvent) error

// Consumer reads savings change events as part of a consumer group.
type Consumer struct {
	reader messageReader
	log    zerolog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		log: log,
	}
}

// Run fetches events until ctx is cancelled. Malformed messages are logged
// and committed; a handler error stops the loop.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka.Run: fetch: %w", err)
		}

		var event domain.TransactionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Skipping malformed event")
		} else if err := handle(ctx, event); err != nil {
			return fmt.Errorf("kafka.Run: handling %s at offset %d: %w", event.Transaction.ID, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka.Run: commit: %w", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
