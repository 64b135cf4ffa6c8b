package kafka

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/open511-exchange/internal/config"
	"github.com/couchcryptid/open511-exchange/internal/pipeline"
)

// Writer produces rendered documents to a Kafka topic.
// It implements pipeline.BatchPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch writes the rendered documents to the sink topic in a single
// WriteMessages call for efficiency.
func (w *Writer) PublishBatch(ctx context.Context, docs []pipeline.OutputDocument) error {
	if len(docs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(docs))
	for i := range docs {
		msgs[i] = serializeToMessage(docs[i])
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage builds a Kafka message for a rendered document. The key
// is jurisdiction-scoped so all updates to one event land on one partition.
func serializeToMessage(doc pipeline.OutputDocument) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(doc.JurisdictionSlug + "/" + doc.EventID),
		Value: doc.Body,
		Headers: []kafkago.Header{
			{Key: "jurisdiction", Value: []byte(doc.JurisdictionSlug)},
			{Key: "event_id", Value: []byte(doc.EventID)},
			{Key: "status", Value: []byte(doc.Status)},
			{Key: "content_type", Value: []byte("application/xml")},
		},
	}
}
