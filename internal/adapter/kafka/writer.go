package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-lightning-service/internal/config"
	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Writer publishes newly ingested strikes to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured strike topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaStrikeTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, clock: clockwork.NewRealClock(), logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// Publish serializes strikes and writes them in a single WriteMessages call.
// Strikes are keyed by ID so repeats of the same strike land on one partition.
func (w *Writer) Publish(ctx context.Context, mode string, strikes []domain.Strike) error {
	if len(strikes) == 0 {
		return nil
	}
	ingestedAt := w.clock.Now()
	msgs := make([]kafkago.Message, len(strikes))
	for i := range strikes {
		msg, err := serializeToMessage(strikes[i], mode, ingestedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d strikes: %w", len(msgs), err)
	}
	w.logger.Debug("strikes published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Strike into a Kafka message.
func serializeToMessage(strike domain.Strike, mode string, ingestedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(strike)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize strike: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strike.ID),
		Value: data,
		Time:  strike.Time(),
		Headers: []kafkago.Header{
			{Key: "mode", Value: []byte(mode)},
			{Key: "ingested_at", Value: []byte(ingestedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
