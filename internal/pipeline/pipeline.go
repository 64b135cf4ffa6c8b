// Package pipeline orchestrates the exchange loop: extract incoming event
// documents from the source topic, reconcile them into the store, and
// publish the rendered canonical documents to the sink topic.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/open511-exchange/internal/observability"
)

// RawDocument is one unprocessed message from the source topic, carrying
// enough Kafka position data to commit its offset after a successful merge.
type RawDocument struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time

	// Commit acknowledges the message at the source. Nil when the source
	// does not track offsets.
	Commit func(ctx context.Context) error
}

// OutputDocument is one rendered canonical document bound for the sink topic.
type OutputDocument struct {
	JurisdictionSlug string
	EventID          string
	Status           string
	Body             []byte
}

// BatchExtractor reads up to batchSize raw documents from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]RawDocument, error)
}

// Processor reconciles one raw document and renders the canonical result.
type Processor interface {
	Process(ctx context.Context, raw RawDocument) (OutputDocument, error)
}

// BatchPublisher writes rendered documents to the destination.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, docs []OutputDocument) error
}

// Pipeline orchestrates the extract-reconcile-publish loop.
type Pipeline struct {
	extractor BatchExtractor
	processor Processor
	publisher BatchPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, p Processor, pub BatchPublisher, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		processor: p,
		publisher: pub,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has processed at least one
// document, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any documents yet")
	}
	return nil
}

// Run executes the batch exchange loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during Kafka outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-reconcile-publish cycle. Returns false if
// the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.DocumentsConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	published, ok := p.processAndPublish(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if published > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// processAndPublish reconciles each document in the batch, publishes the
// successes, and commits offsets. A document that fails to reconcile is
// skipped and its offset committed so a poison message cannot wedge the
// partition. Returns the number of published documents and false if the
// pipeline should stop.
func (p *Pipeline) processAndPublish(ctx context.Context, rawBatch []RawDocument, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	outBatch := make([]OutputDocument, 0, len(rawBatch))
	successfulRaws := make([]RawDocument, 0, len(rawBatch))

	for _, raw := range rawBatch {
		out, err := p.processor.Process(ctx, raw)
		if err != nil {
			p.logger.Warn("reconcile failed, skipping document",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ReconcileErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, out)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}

	if err := p.publisher.PublishBatch(ctx, outBatch); err != nil {
		p.logger.Error("publish batch failed", "error", err, "batch_size", len(outBatch))
		return 0, p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.metrics.DocumentsPublished.Add(float64(len(outBatch)))

	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should
// stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the document offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw RawDocument) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
