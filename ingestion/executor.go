// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/checkpoint"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/metrics"
	"github.com/poiesic/vectorload/storage"
)

const tracerName = "github.com/poiesic/vectorload/ingestion"

// Retry stages.
const (
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

// Executor runs batches of one stream at a time. It is safe for concurrent
// use across distinct streams.
type Executor struct {
	embedder     ai.Embedder
	upserter     storage.Upserter
	checkpoints  checkpoint.Store
	dimensions   int
	backoff      Backoff
	embedTimeout time.Duration
	storeTimeout time.Duration
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	progress     io.Writer
	logger       *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithBackoff sets the retry wait shape.
func WithBackoff(b Backoff) Option {
	return func(e *Executor) error {
		if b.Base < 0 || b.Cap < 0 || b.Jitter < 0 {
			return fmt.Errorf("%w: backoff durations must not be negative", ErrInvalidParams)
		}
		e.backoff = b
		return nil
	}
}

// WithTimeouts bounds each embedding call and each upsert or checkpoint
// write. Zero means no per-call limit.
func WithTimeouts(embed, store time.Duration) Option {
	return func(e *Executor) error {
		e.embedTimeout = embed
		e.storeTimeout = store
		return nil
	}
}

// WithDimensions overrides the vector length expected from the embedder.
func WithDimensions(dims int) Option {
	return func(e *Executor) error {
		if dims < 0 {
			return fmt.Errorf("%w: dimensions must not be negative", ErrInvalidParams)
		}
		e.dimensions = dims
		return nil
	}
}

// WithMetrics records run counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) error {
		e.metrics = m
		return nil
	}
}

// WithTracerProvider sets where spans go.
// Default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) error {
		e.tracer = tp.Tracer(tracerName)
		return nil
	}
}

// WithProgress prints a progress line per stream to w.
func WithProgress(w io.Writer) Option {
	return func(e *Executor) error {
		e.progress = w
		return nil
	}
}

// NewExecutor creates a new executor.
func NewExecutor(embedder ai.Embedder, upserter storage.Upserter, checkpoints checkpoint.Store, opts ...Option) (*Executor, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if upserter == nil {
		return nil, ErrUpserterRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointStoreRequired
	}

	e := &Executor{
		embedder:    embedder,
		upserter:    upserter,
		checkpoints: checkpoints,
		dimensions:  embedder.Dimensions(),
		backoff:     DefaultBackoff(),
		tracer:      otel.Tracer(tracerName),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "ingestion")
	return e, nil
}

// Checkpoint returns the stored offset of stream.
func (e *Executor) Checkpoint(ctx context.Context, stream string) int {
	return e.checkpoints.Read(ctx, stream)
}

// Run ingests records of stream. records must be in the source's stable
// order and must be the whole stream, since offsets count from its start.
//
// The returned Result is never nil. On abort it reports the work committed
// before the failure, and the error carries the failure's kind.
func (e *Executor) Run(ctx context.Context, stream Stream, records []core.RawRecord, params Params) (*Result, error) {
	started := time.Now()
	res := &Result{Stream: stream.Name, Total: len(records)}
	if err := stream.Validate(); err != nil {
		return res, err
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return res, err
	}

	ctx, span := e.tracer.Start(ctx, "ingestion.Run", trace.WithAttributes(
		attribute.String("stream", stream.Name),
		attribute.Int("total", len(records)),
	))
	defer span.End()

	logger := e.logger.With("stream", stream.Name)
	stored := e.checkpoints.Read(ctx, stream.Name)
	offset := resolveOffset(params, stored, len(records))
	end := len(records)
	if params.Limit > 0 {
		end = min(end, offset+params.Limit)
	}
	res.StartOffset = offset
	res.EndOffset = offset
	span.SetAttributes(attribute.Int("start_offset", offset))
	logger.Info("run started", "total", len(records), "start_offset", offset, "checkpoint", stored,
		"batch_size", params.BatchSize, "max_retries", *params.MaxRetries)

	var tracker *ProgressTracker
	if e.progress != nil {
		tracker = NewProgressTracker(e.progress, stream.Name, len(records), params.BatchSize)
		tracker.Start(offset)
	}

	// An out-of-range checkpoint is stale and must not hold back new writes.
	baseline := stored
	if stored < 0 || stored > len(records) {
		baseline = 0
	}
	err := e.runBatches(ctx, stream, records, offset, end, baseline, params, res, tracker, logger)

	res.Elapsed = time.Since(started)
	res.ElapsedSeconds = res.Elapsed.Seconds()
	if tracker != nil {
		tracker.Finish(err != nil)
	}
	span.SetAttributes(attribute.Int("end_offset", res.EndOffset), attribute.Int("upserted", res.Upserted))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run aborted", "end_offset", res.EndOffset, "upserted", res.Upserted,
			"batches", res.Batches, "err", err)
		return res, err
	}
	logger.Info("run finished", "end_offset", res.EndOffset, "upserted", res.Upserted, "batches", res.Batches,
		"skipped", res.Skipped, "retries", res.Retries, "elapsed", res.Elapsed)
	return res, nil
}

// resolveOffset picks the explicit start, else the checkpoint when resuming,
// else 0. Out-of-range values clamp to 0.
func resolveOffset(p Params, stored, total int) int {
	offset := 0
	switch {
	case p.Start != nil:
		offset = *p.Start
	case p.Resume:
		offset = stored
	}
	if offset < 0 || offset > total {
		return 0
	}
	return offset
}

func (e *Executor) runBatches(
	ctx context.Context,
	stream Stream,
	records []core.RawRecord,
	offset, end, stored int,
	params Params,
	res *Result,
	tracker *ProgressTracker,
	logger *slog.Logger,
) error {
	for pos := offset; pos < end; {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stopped at offset %d: %w", pos, err)
		}

		stop := min(pos+params.BatchSize, end)
		if err := e.processBatch(ctx, stream, records[pos:stop], pos, params, res, logger); err != nil {
			return fmt.Errorf("stream %s batch [%d,%d): %w", stream.Name, pos, stop, err)
		}
		res.Batches++
		res.EndOffset = stop

		// Strictly after the commit, and never backwards.
		if stop > stored && e.writeCheckpoint(ctx, stream.Name, stop, res, logger) {
			stored = stop
		}
		if tracker != nil {
			tracker.Update(stop)
		}
		pos = stop
	}
	return nil
}

func (e *Executor) processBatch(
	ctx context.Context,
	stream Stream,
	raws []core.RawRecord,
	pos int,
	params Params,
	res *Result,
	logger *slog.Logger,
) (err error) {
	started := time.Now()
	upserted := 0
	ctx, span := e.tracer.Start(ctx, "ingestion.Batch", trace.WithAttributes(
		attribute.String("stream", stream.Name),
		attribute.Int("offset", pos),
		attribute.Int("size", len(raws)),
	))
	defer func() {
		outcome := metrics.OutcomeCommitted
		switch {
		case err != nil:
			outcome = metrics.OutcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case upserted == 0:
			outcome = metrics.OutcomeEmpty
		}
		e.metrics.Batch(stream.Name, outcome, time.Since(started))
		span.End()
	}()

	records, skipped, duplicates, err := normalizeBatch(stream, raws, pos, logger)
	res.Skipped += skipped
	res.Duplicates += duplicates
	e.metrics.Skipped(stream.Name, skipped)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.EmbeddingText()
	}

	attempts := *params.MaxRetries + 1
	var vectors []core.Vector
	err = RetryWithBackoff(ctx, e.backoff, attempts, e.onRetry(stream.Name, StageEmbed, res, logger),
		func(ctx context.Context) error {
			callCtx, cancel := detach(ctx, e.embedTimeout)
			defer cancel()

			raw, err := e.embedder.EmbedTexts(callCtx, texts)
			if err != nil {
				return ai.Classify(err)
			}
			vectors, err = checkVectors(raw, len(texts), e.dimensions)
			return err
		})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	rows := make([]storage.Row, len(records))
	for i, rec := range records {
		row := rec.Columns()
		row[stream.Table.VectorColumn] = vectors[i]
		rows[i] = row
	}

	err = RetryWithBackoff(ctx, e.backoff, attempts, e.onRetry(stream.Name, StageUpsert, res, logger),
		func(ctx context.Context) error {
			callCtx, cancel := detach(ctx, e.storeTimeout)
			defer cancel()
			return e.upserter.Upsert(callCtx, stream.Table, rows)
		})
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	upserted = len(rows)
	res.Upserted += upserted
	e.metrics.Upserted(stream.Name, upserted)
	logger.Debug("batch committed", "offset", pos, "size", len(raws), "upserted", upserted)
	return nil
}

// normalizeBatch normalizes raws in order. Malformed records are counted and
// dropped. A repeated natural key replaces the earlier record in place.
func normalizeBatch(stream Stream, raws []core.RawRecord, pos int, logger *slog.Logger) ([]core.Record, int, int, error) {
	records := make([]core.Record, 0, len(raws))
	index := make(map[string]int, len(raws))
	skipped, duplicates := 0, 0

	for i, raw := range raws {
		rec, err := stream.Normalize(raw)
		if err != nil {
			if errors.Is(err, core.ErrMalformedRecord) {
				skipped++
				logger.Debug("record discarded", "offset", pos+i, "reason", err)
				continue
			}
			return nil, skipped, duplicates, fmt.Errorf("normalize record %d: %w", pos+i, err)
		}
		if rec == nil {
			skipped++
			continue
		}

		key := rec.Key()
		if j, ok := index[key]; ok {
			records[j] = rec
			duplicates++
			continue
		}
		index[key] = len(records)
		records = append(records, rec)
	}
	return records, skipped, duplicates, nil
}

func (e *Executor) onRetry(stream, stage string, res *Result, logger *slog.Logger) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		res.Retries++
		e.metrics.Retry(stream, stage)
		logger.Warn("transient failure, retrying", "stage", stage, "attempt", attempt, "delay", delay, "error", err)
	}
}

// writeCheckpoint records offset. Failures are counted and logged only.
func (e *Executor) writeCheckpoint(ctx context.Context, stream string, offset int, res *Result, logger *slog.Logger) bool {
	callCtx, cancel := detach(ctx, e.storeTimeout)
	defer cancel()

	if err := e.checkpoints.Write(callCtx, stream, offset); err != nil {
		res.CheckpointFailures++
		e.metrics.CheckpointFailure(stream)
		logger.Warn("checkpoint write failed", "offset", offset, "err", err)
		return false
	}
	e.metrics.CheckpointWritten(stream, offset)
	return true
}

// detach derives a call context that survives cancellation of ctx, so a
// started embedding call or transaction runs to completion, bounded by timeout.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(detached, timeout)
	}
	return context.WithCancel(detached)
}
