package ingestion

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/storage"
)

func TestRun_BatchBoundaries(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50})
	require.NoError(t, err)

	assert.Equal(t, []int{50, 50, 20}, f.upserter.batchSizes())
	assert.Equal(t, []int{50, 100, 120}, f.checkpoints.Writes())
	assert.Equal(t, 3, f.embedder.CallCount(), "one embedding call per batch")

	batches := f.embedder.Batches()
	assert.Equal(t, "k000 v0", batches[0][0])
	assert.Equal(t, "k100 v100", batches[2][0])

	assert.Equal(t, "items", res.Stream)
	assert.Equal(t, 120, res.Total)
	assert.Equal(t, 0, res.StartOffset)
	assert.Equal(t, 120, res.EndOffset)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 120, res.Upserted)
	assert.Zero(t, res.Retries)
	assert.Positive(t, res.Elapsed)
}

func TestRun_TransientStorageRetried(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.upserter.UpsertFunc = func(ctx context.Context, table storage.Table, rows []storage.Row) error {
		if calls.Add(1) <= 2 {
			return transient("connection reset by peer")
		}
		return nil
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(50), Params{BatchSize: 50})
	require.NoError(t, err)

	assert.Equal(t, 3, f.upserter.Calls())
	assert.Equal(t, []int{50}, f.upserter.batchSizes(), "exactly one committed batch")
	assert.Equal(t, []int{50}, f.checkpoints.Writes(), "exactly one checkpoint write")
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 1, f.embedder.CallCount(), "embeddings are not recomputed for storage retries")

	logs := f.logs.String()
	assert.Equal(t, 2, strings.Count(logs, "transient failure, retrying"))
	assert.Contains(t, logs, "stage=upsert")
	assert.Contains(t, logs, "attempt=2")
	assert.Contains(t, logs, "stream=items")
}

func TestRun_PermanentStorageAborts(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.upserter.UpsertFunc = func(ctx context.Context, table storage.Table, rows []storage.Row) error {
		if calls.Add(1) == 2 {
			return permanent("duplicate entry for key 'uk'")
		}
		return nil
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPermanentStorage)

	assert.Equal(t, 2, f.upserter.Calls(), "permanent failures are not retried")
	assert.Equal(t, []int{50}, f.checkpoints.Writes())
	assert.Equal(t, 50, f.checkpoints.Read(context.Background(), "items"))
	assert.Equal(t, 50, res.EndOffset)
	assert.Equal(t, 50, res.Upserted)
	assert.Equal(t, 1, res.Batches)
	assert.Zero(t, res.Retries)
}

func TestRun_RetryCeiling(t *testing.T) {
	f := newFixture(t)
	f.upserter.UpsertFunc = func(ctx context.Context, table storage.Table, rows []storage.Row) error {
		return transient("lock wait timeout")
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(10),
		Params{BatchSize: 10, MaxRetries: intPtr(2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientStorage)
	assert.Equal(t, 3, f.upserter.Calls())
	assert.Equal(t, 2, res.Retries)
	assert.Empty(t, f.checkpoints.Writes())

	f = newFixture(t)
	f.upserter.UpsertFunc = func(ctx context.Context, table storage.Table, rows []storage.Row) error {
		return transient("lock wait timeout")
	}
	_, err = f.executor.Run(context.Background(), itemStream("items"), makeRecords(10), Params{BatchSize: 10})
	require.Error(t, err)
	assert.Equal(t, DefaultMaxRetries+1, f.upserter.Calls(), "default ceiling is five attempts")

	f = newFixture(t)
	f.upserter.UpsertFunc = func(ctx context.Context, table storage.Table, rows []storage.Row) error {
		return transient("lock wait timeout")
	}
	_, err = f.executor.Run(context.Background(), itemStream("items"), makeRecords(10),
		Params{BatchSize: 10, MaxRetries: intPtr(0)})
	require.Error(t, err)
	assert.Equal(t, 1, f.upserter.Calls())
}

func TestRun_EmbeddingTransientRetried(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, ai.Transient(errors.New("429 too many requests"))
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 2, 3, 4, 5, 6, 7, 8}
		}
		return out, nil
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(5), Params{BatchSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 1, f.upserter.Calls(), "the transaction is attempted only after embedding succeeds")
	assert.Contains(t, f.logs.String(), "stage=embed")
}

func TestRun_EmbeddingPermanentAborts(t *testing.T) {
	tests := []struct {
		name  string
		embed func(ctx context.Context, texts []string) ([][]float32, error)
	}{
		{"provider rejects", func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, ai.Permanent(errors.New("401 unauthorized"))
		}},
		{"unclassified error", func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("model exploded")
		}},
		{"count mismatch", func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0, 0, 0, 0, 0, 0, 0}}, nil
		}},
		{"wrong dimensions", func(ctx context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{1, 0}
			}
			return out, nil
		}},
		{"non-finite", func(ctx context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{1, 0, 0, 0, 0, 0, 0, float32(math.NaN())}
			}
			return out, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.embedder.EmbedTextsFunc = tt.embed

			res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(3), Params{BatchSize: 3})
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrEmbeddingPermanent)
			assert.Equal(t, 1, f.embedder.CallCount())
			assert.Zero(t, f.upserter.Calls())
			assert.Empty(t, f.checkpoints.Writes())
			assert.Zero(t, res.Upserted)
		})
	}
}

func TestRun_VectorsAttachedUnitLength(t *testing.T) {
	f := newFixture(t, WithDimensions(2))
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{3, 4}}, nil
	}

	_, err := f.executor.Run(context.Background(), itemStream("items"),
		[]core.RawRecord{{"key": "go", "val": "lang"}}, Params{BatchSize: 10})
	require.NoError(t, err)

	row := f.upserter.rows["go"]
	assert.Equal(t, core.Vector{0.6, 0.8}, row["embedding"])
	assert.Equal(t, "lang", row["val"])
}

func TestRun_ResolveOffset(t *testing.T) {
	tests := []struct {
		name   string
		stored int
		params Params
		want   int
	}{
		{"fresh", 0, Params{Resume: true}, 0},
		{"resume", 100, Params{Resume: true}, 100},
		{"resume disabled", 100, Params{}, 0},
		{"explicit start wins", 50, Params{Resume: true, Start: intPtr(110)}, 110},
		{"explicit zero", 50, Params{Resume: true, Start: intPtr(0)}, 0},
		{"start beyond end", 0, Params{Start: intPtr(500)}, 0},
		{"negative start", 0, Params{Start: intPtr(-3)}, 0},
		{"corrupt checkpoint beyond end", 999, Params{Resume: true}, 0},
		{"start at end", 0, Params{Start: intPtr(120)}, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.checkpoints.offsets["items"] = tt.stored
			tt.params.BatchSize = 50

			res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.StartOffset)
			assert.Equal(t, 120, res.EndOffset)
			assert.Equal(t, 120-tt.want, res.Upserted)
		})
	}
}

func TestRun_StaleCheckpointBeyondEndIsReplaced(t *testing.T) {
	f := newFixture(t)
	f.checkpoints.offsets["items"] = 999

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50, Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.StartOffset)
	assert.Equal(t, []int{50, 100, 120}, f.checkpoints.Writes())
	assert.Equal(t, 120, f.checkpoints.Read(context.Background(), "items"))

	res, err = f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50, Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 120, res.StartOffset)
	assert.Equal(t, 0, res.Upserted)
}

func TestRun_ResumeSkipsConsumedRecords(t *testing.T) {
	f := newFixture(t)
	f.checkpoints.offsets["items"] = 100

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50, Resume: true})
	require.NoError(t, err)

	assert.Equal(t, 100, res.StartOffset)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, []int{20}, f.upserter.batchSizes())
	assert.Equal(t, "k100 v100", f.embedder.Batches()[0][0])
	assert.NotContains(t, f.upserter.rows, "k099")
	assert.Equal(t, []int{120}, f.checkpoints.Writes())
}

func TestRun_ResumptionMatchesSingleRun(t *testing.T) {
	records := makeRecords(120)

	single := newFixture(t)
	_, err := single.executor.Run(context.Background(), itemStream("items"), records, Params{BatchSize: 50})
	require.NoError(t, err)

	for _, k := range []int{1, 37, 50, 119, 120} {
		split := newFixture(t)
		_, err := split.executor.Run(context.Background(), itemStream("items"), records,
			Params{BatchSize: 50, Start: intPtr(0), Limit: k})
		require.NoError(t, err)
		assert.Equal(t, k, split.checkpoints.Read(context.Background(), "items"))

		res, err := split.executor.Run(context.Background(), itemStream("items"), records,
			Params{BatchSize: 50, Resume: true})
		require.NoError(t, err)
		assert.Equal(t, k, res.StartOffset)
		assert.Equal(t, single.upserter.rows, split.upserter.rows, "split at %d", k)
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	records := makeRecords(120)

	_, err := f.executor.Run(context.Background(), itemStream("items"), records, Params{BatchSize: 50})
	require.NoError(t, err)
	first := make(map[string]storage.Row, len(f.upserter.rows))
	for k, v := range f.upserter.rows {
		first[k] = v
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), records, Params{BatchSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Upserted)
	assert.Len(t, f.upserter.rows, 120)
	assert.Equal(t, first, f.upserter.rows)
}

func TestRun_CheckpointNeverDecreases(t *testing.T) {
	f := newFixture(t)
	f.checkpoints.offsets["items"] = 100

	_, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120),
		Params{BatchSize: 50, Start: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, []int{120}, f.checkpoints.Writes(), "offsets 50 and 100 would not advance the stored value")

	writes := f.checkpoints.Writes()
	for i := 1; i < len(writes); i++ {
		assert.Greater(t, writes[i], writes[i-1])
	}
}

func TestRun_CheckpointFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.checkpoints.WriteFunc = func(stream string, offset int) error {
		return errors.New("disk full")
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Upserted)
	assert.Equal(t, 3, res.CheckpointFailures)
	assert.Contains(t, f.logs.String(), "checkpoint write failed")
}

func TestRun_CheckpointRecoversAfterFailedWrite(t *testing.T) {
	f := newFixture(t)
	f.checkpoints.WriteFunc = func(stream string, offset int) error {
		if offset == 50 {
			return errors.New("timeout")
		}
		return nil
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CheckpointFailures)
	assert.Equal(t, []int{100, 120}, f.checkpoints.Writes())
}

func TestRun_DiscardsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	records := []core.RawRecord{
		{"key": "a", "val": "first"},
		{"key": ""},
		{"key": "b", "val": "only"},
		{"val": "no key"},
		{"key": "a", "val": "second"},
	}

	res, err := f.executor.Run(context.Background(), itemStream("items"), records, Params{BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, 5, res.EndOffset)
	assert.Equal(t, [][]string{{"a", "b"}}, f.upserter.batches, "last value wins at the first position")
	assert.Equal(t, "second", f.upserter.rows["a"]["val"])
	assert.Equal(t, []string{"a second", "b only"}, f.embedder.Batches()[0])
	assert.Equal(t, []int{5}, f.checkpoints.Writes())
}

func TestRun_AllDiscardedBatchStillAdvances(t *testing.T) {
	f := newFixture(t)
	records := append([]core.RawRecord{{"key": ""}, {"key": ""}}, makeRecords(3)...)

	res, err := f.executor.Run(context.Background(), itemStream("items"), records, Params{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, 2, f.embedder.CallCount(), "no provider call for an empty batch")
	assert.Equal(t, []int{2, 4, 5}, f.checkpoints.Writes())
}

func TestRun_NormalizerFailureAborts(t *testing.T) {
	f := newFixture(t)
	records := makeRecords(4)
	records[3] = core.RawRecord{"fail": true}

	res, err := f.executor.Run(context.Background(), itemStream("items"), records, Params{BatchSize: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, res.EndOffset)
	assert.Equal(t, []int{2}, f.checkpoints.Writes())
}

func TestRun_StopsBetweenBatches(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.upserter.UpsertFunc = func(callCtx context.Context, table storage.Table, rows []storage.Row) error {
		cancel()
		return callCtx.Err()
	}

	res, err := f.executor.Run(ctx, itemStream("items"), makeRecords(120), Params{BatchSize: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.upserter.Calls(), "the in-flight batch completes")
	assert.Equal(t, 50, res.EndOffset)
	assert.Equal(t, []int{50}, f.checkpoints.Writes())
}

func TestRun_Limit(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{BatchSize: 50, Limit: 30})
	require.NoError(t, err)
	assert.Equal(t, []int{30}, f.upserter.batchSizes())
	assert.Equal(t, 30, res.EndOffset)
	assert.Equal(t, 120, res.Total)
}

func TestRun_EmptyInput(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor.Run(context.Background(), itemStream("items"), nil, Params{BatchSize: 50})
	require.NoError(t, err)
	assert.Zero(t, res.Batches)
	assert.Zero(t, f.embedder.CallCount())
	assert.Empty(t, f.checkpoints.Writes())
}

func TestRun_InvalidParams(t *testing.T) {
	f := newFixture(t)
	stream := itemStream("items")

	for _, p := range []Params{
		{BatchSize: -1},
		{BatchSize: 10, MaxRetries: intPtr(-1)},
		{BatchSize: 10, Limit: -5},
	} {
		_, err := f.executor.Run(context.Background(), stream, makeRecords(3), p)
		assert.ErrorIs(t, err, ErrInvalidParams)
	}

	noNormalizer := stream
	noNormalizer.Normalize = nil
	_, err := f.executor.Run(context.Background(), noNormalizer, makeRecords(3), Params{})
	assert.ErrorIs(t, err, ErrNormalizerRequired)

	badTable := stream
	badTable.Table.VectorColumn = "missing"
	_, err = f.executor.Run(context.Background(), badTable, makeRecords(3), Params{})
	assert.ErrorIs(t, err, storage.ErrInvalidTable)

	assert.Zero(t, f.upserter.Calls())
}

func TestRun_DefaultBatchSize(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor.Run(context.Background(), itemStream("items"), makeRecords(120), Params{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, []int{DefaultBatchSize, DefaultBatchSize, 20}, f.upserter.batchSizes())
}

func TestNewExecutor_Required(t *testing.T) {
	f := newFixture(t)

	_, err := NewExecutor(nil, f.upserter, f.checkpoints)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewExecutor(f.embedder, nil, f.checkpoints)
	assert.ErrorIs(t, err, ErrUpserterRequired)
	_, err = NewExecutor(f.embedder, f.upserter, nil)
	assert.ErrorIs(t, err, ErrCheckpointStoreRequired)
	_, err = NewExecutor(f.embedder, f.upserter, f.checkpoints, WithDimensions(-1))
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = NewExecutor(f.embedder, f.upserter, f.checkpoints, WithBackoff(Backoff{Base: -1}))
	assert.ErrorIs(t, err, ErrInvalidParams)
}
