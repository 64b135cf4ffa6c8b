package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/open511-exchange/internal/config"
	"github.com/couchcryptid/open511-exchange/internal/pipeline"
)

// Reader consumes raw event documents from a Kafka topic using a consumer
// group with manual offset commits. It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch reads up to batchSize messages. The first message is awaited
// under the caller's context; once the batch has started, the flush interval
// bounds how long we wait to top it up, so a slow trickle of updates still
// flows through promptly.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]pipeline.RawDocument, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []pipeline.RawDocument{r.mapMessage(first)}

	fillCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(fillCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			r.logger.Warn("batch fill aborted", "error", err, "collected", len(batch))
			break
		}
		batch = append(batch, r.mapMessage(msg))
	}
	return batch, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) mapMessage(msg kafkago.Message) pipeline.RawDocument {
	doc := mapMessageToRawDocument(msg)
	doc.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return doc
}

// mapMessageToRawDocument copies the Kafka position data a raw document
// carries through the pipeline.
func mapMessageToRawDocument(msg kafkago.Message) pipeline.RawDocument {
	return pipeline.RawDocument{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
