//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/open511-exchange/internal/adapter/kafka"
	"github.com/couchcryptid/open511-exchange/internal/adapter/memory"
	"github.com/couchcryptid/open511-exchange/internal/config"
	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/observability"
	"github.com/couchcryptid/open511-exchange/internal/pipeline"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
	testBaseURL     = "http://geo.example/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "get broker addresses")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	client := &kafkago.Client{Addr: kafkago.TCP(broker)}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.CreateTopics(ctx, &kafkago.CreateTopicsRequest{
		Topics: []kafkago.TopicConfig{{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}},
	})
	require.NoError(t, err, "create topic %s", topic)
	for _, topicErr := range resp.Errors {
		require.NoError(t, topicErr, "create topic %s", topic)
	}
}

func testConfig(broker, groupSuffix string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("test-%s-%d", groupSuffix, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func newProcessor(t *testing.T) (*pipeline.DocumentProcessor, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	jur := domain.NewJurisdiction("jur1")
	require.NoError(t, store.SaveJurisdiction(context.Background(), jur))

	resolver := domain.NewResolver(store, nil, testBaseURL, discardLogger())
	reconciler := domain.NewReconciler(store, resolver, discardLogger())
	renderer := domain.NewRenderer(testBaseURL)
	defaults := domain.ReconcileContext{
		DefaultJurisdiction: jur,
		DefaultLanguage:     "en",
		BaseURL:             testBaseURL,
	}
	return pipeline.NewDocumentProcessor(reconciler, renderer, store, defaults, discardLogger()), store
}

type sinkMessage struct {
	Key     string
	Body    string
	Headers map[string]string
}

func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return sinkMessage{Key: string(msg.Key), Body: string(msg.Value), Headers: headers}
}

func eventFragment(id string) string {
	return fmt.Sprintf(
		`<event id="%s"><headline>Closure %s</headline><geometry><Point><pos>1 2</pos></Point></geometry></event>`,
		id, id)
}

// TestKafkaReaderWriter verifies the adapter layer: kafkaadapter.Reader
// (extractor) and kafkaadapter.Writer (publisher) correctly round-trip a
// document through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "reader")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	payload := eventFragment("42")
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("jur1/42"),
		Value: []byte(payload),
	}))

	reader := kafkaadapter.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// The consumer group may need time to rebalance before partitions are
	// assigned and messages become available.
	var batch []pipeline.RawDocument
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("jur1/42"), raw.Key)
	assert.Equal(t, payload, string(raw.Value))
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	proc, _ := newProcessor(t)
	out, err := proc.Process(ctx, raw)
	require.NoError(t, err)

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.PublishBatch(ctx, []pipeline.OutputDocument{out}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	sm := readSink(ctx, t, consumer)
	assert.Equal(t, "jur1/42", sm.Key)
	assert.Equal(t, "jur1", sm.Headers["jurisdiction"])
	assert.Equal(t, "42", sm.Headers["event_id"])
	assert.Equal(t, "active", sm.Headers["status"])

	el, err := xmldoc.Parse(sm.Body)
	require.NoError(t, err)
	assert.Equal(t, "http://geo.example/api/jurisdictions/jur1/events/42",
		xmldoc.FindLink(el, "self").SelectAttrValue("href", ""))
	assert.Equal(t, "active", xmldoc.ChildElement(el, "status").Text())
}

// TestPipelineEndToEnd wires the full pipeline (Reader, DocumentProcessor,
// Writer) with real Kafka. A poison message in the middle of the stream must
// be skipped without stalling the valid documents around it.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "pipeline")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("a"), Value: []byte(eventFragment("1"))},
		kafkago.Message{Key: []byte("poison"), Value: []byte("this is not xml")},
		kafkago.Message{Key: []byte("b"), Value: []byte(eventFragment("2"))},
	))

	reader := kafkaadapter.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	proc, store := newProcessor(t)
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, proc, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := map[string]sinkMessage{}
	for len(received) < 2 {
		sm := readSink(ctx, t, consumer)
		received[sm.Headers["event_id"]] = sm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	require.Contains(t, received, "1")
	require.Contains(t, received, "2")
	for id, sm := range received {
		assert.Equal(t, "jur1", sm.Headers["jurisdiction"], "event %s", id)
		assert.Equal(t, "active", sm.Headers["status"], "event %s", id)
	}

	// Both documents are in the store; the poison message left no trace.
	events, err := store.ListByJurisdiction(ctx, "jur1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.NoError(t, p.CheckReadiness(ctx))
}
