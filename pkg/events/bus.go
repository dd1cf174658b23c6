package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Publisher is the write side of the bus. The service layer publishes after
// each store mutation acknowledges.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Bus is the Kafka-backed bus shared by all gateway instances. Messages are
// keyed by channel so per-channel order survives partitioning.
type Bus struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewBus(brokers []string, topic string, logger zerolog.Logger) *Bus {
	return &Bus{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.ChannelID.String()),
		Value: value,
		Time:  time.Now(),
	})
}

func (b *Bus) Close() error {
	return b.writer.Close()
}

// Consume reads envelopes and hands them to fn until ctx is canceled. Each
// consumer gets a unique group ID so every gateway instance sees every event
// (fan-out, not work-sharing).
func (b *Bus) Consume(ctx context.Context, brokers []string, topic, instanceID string, fn func(Envelope)) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "gateway-" + instanceID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("bus consumer read failed")
			time.Sleep(time.Second)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			b.logger.Error().Err(err).Msg("bus consumer: bad envelope")
			continue
		}
		fn(env)
	}
}
