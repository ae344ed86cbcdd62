// Package kafka adapts the ingest and publishing ports to kafka-go.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/marigraph/sealevel-rules/internal/config"
	"github.com/marigraph/sealevel-rules/internal/ingest"
)

// Reader consumes gauge readings from the source topic.
// It implements ingest.BatchSource.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &Reader{reader: r, logger: logger}
}

// FetchBatch reads up to batchSize messages. It returns early with a partial
// batch when the broker has nothing more buffered, so a quiet topic does not
// stall the loop for a full batch.
func (r *Reader) FetchBatch(ctx context.Context, batchSize int) ([]ingest.Envelope, error) {
	batch := make([]ingest.Envelope, 0, batchSize)
	for len(batch) < batchSize {
		fetchCtx := ctx
		var cancel context.CancelFunc
		if len(batch) > 0 {
			// Partial batch in hand: poll briefly for more, then deliver.
			fetchCtx, cancel = context.WithTimeout(ctx, 100*time.Millisecond)
		}
		msg, err := r.reader.FetchMessage(fetchCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if len(batch) > 0 && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
				return batch, nil
			}
			return nil, err
		}
		batch = append(batch, ingest.Envelope{
			Value:     msg.Value,
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Commit: func(ctx context.Context) error {
				return r.reader.CommitMessages(ctx, msg)
			},
		})
	}
	return batch, nil
}

// Close shuts down the consumer group session.
func (r *Reader) Close() error {
	return r.reader.Close()
}
