package ingestion

import "errors"

var (
	// ErrExecutorRequired is returned when a runner has no executor.
	ErrExecutorRequired = errors.New("executor required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrUpserterRequired is returned when an upserter is not provided.
	ErrUpserterRequired = errors.New("upserter required")

	// ErrCheckpointStoreRequired is returned when a checkpoint store is not provided.
	ErrCheckpointStoreRequired = errors.New("checkpoint store required")

	// ErrNormalizerRequired is returned when a stream has no normalizer.
	ErrNormalizerRequired = errors.New("normalizer required")

	// ErrInvalidParams wraps every run parameter validation failure.
	ErrInvalidParams = errors.New("invalid run parameters")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrStreamBusy is returned when a run for the same stream is in flight.
	ErrStreamBusy = errors.New("stream already running")
)
