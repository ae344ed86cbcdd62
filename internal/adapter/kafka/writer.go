package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/marigraph/sealevel-rules/internal/config"
	"github.com/marigraph/sealevel-rules/internal/domain"
)

// Writer publishes correction suggestions for the downstream forecasting
// consumers.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured suggestion topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSuggestTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes and publishes suggestions in a single
// WriteMessages call. Messages are keyed by station so per-station ordering
// survives partitioning.
func (w *Writer) PublishBatch(ctx context.Context, suggestions []domain.CorrectionSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(suggestions))
	for i := range suggestions {
		msg, err := serializeToMessage(suggestions[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and shuts down the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a suggestion into a Kafka message.
func serializeToMessage(s domain.CorrectionSuggestion) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize suggestion: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.Station),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "method", Value: []byte(s.Method)},
			{Key: "flagged_at", Value: []byte(s.Timestamp.UTC().Format(time.RFC3339))},
		},
	}, nil
}
