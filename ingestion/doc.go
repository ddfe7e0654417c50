// Package ingestion runs the resumable batch-ingestion loop.
//
// An Executor takes the raw records of one stream in their stable source
// order and:
//   - resolves the start offset from an explicit start, the stored checkpoint or 0
//   - slices the records from that offset into contiguous batches
//   - normalizes each batch, discarding and counting malformed records
//   - embeds the batch in one provider call
//   - upserts the batch by natural key in one transaction
//   - writes the checkpoint only after the commit is confirmed
//
// Transient embedding and storage failures are retried with capped
// exponential backoff and jitter. Permanent failures abort the run and leave
// the last written checkpoint in place. Because every write is an upsert,
// replaying the batch that was in flight during a crash is harmless.
//
// Batches of one stream are strictly sequential. A Runner executes distinct
// streams concurrently on a worker pool and rejects a second run of a stream
// that is already running.
package ingestion
