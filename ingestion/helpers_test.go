package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/vectorload/ai/mock"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/storage"
)

// item is a minimal canonical record.
type item struct {
	key string
	val string
}

func (i item) Key() string           { return i.key }
func (i item) EmbeddingText() string { return i.key + " " + i.val }
func (i item) Columns() map[string]any {
	return map[string]any{"key": i.key, "val": i.val}
}

var errBoom = errors.New("boom")

func normalizeItem(raw core.RawRecord) (core.Record, error) {
	if raw["fail"] == true {
		return nil, errBoom
	}
	key, _ := raw["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("%w: blank key", core.ErrMalformedRecord)
	}
	val, _ := raw["val"].(string)
	return item{key: key, val: val}, nil
}

func itemStream(name string) Stream {
	return Stream{
		Name:      name,
		Normalize: normalizeItem,
		Table: storage.Table{
			Name:          name,
			KeyColumns:    []string{"key"},
			EnrichColumns: []string{"val", "embedding"},
			VectorColumn:  "embedding",
		},
	}
}

func makeRecords(n int) []core.RawRecord {
	records := make([]core.RawRecord, n)
	for i := range records {
		records[i] = core.RawRecord{"key": fmt.Sprintf("k%03d", i), "val": fmt.Sprintf("v%d", i)}
	}
	return records
}

// fakeUpserter keeps committed rows in memory, keyed by natural key.
type fakeUpserter struct {
	// UpsertFunc runs before the commit; an error fails the call.
	UpsertFunc func(ctx context.Context, table storage.Table, rows []storage.Row) error

	mu      sync.Mutex
	calls   int
	batches [][]string
	rows    map[string]storage.Row
}

func newFakeUpserter() *fakeUpserter {
	return &fakeUpserter{rows: make(map[string]storage.Row)}
}

func (f *fakeUpserter) Upsert(ctx context.Context, table storage.Table, rows []storage.Row) error {
	f.mu.Lock()
	f.calls++
	fn := f.UpsertFunc
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, table, rows); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row["key"].(string)
		f.rows[keys[i]] = row
	}
	f.batches = append(f.batches, keys)
	return nil
}

func (f *fakeUpserter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeUpserter) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// fakeCheckpoints is an in-memory checkpoint.Store that records writes.
type fakeCheckpoints struct {
	WriteFunc func(stream string, offset int) error

	mu      sync.Mutex
	offsets map[string]int
	writes  []int
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{offsets: make(map[string]int)}
}

func (f *fakeCheckpoints) Read(ctx context.Context, stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsets[stream]
}

func (f *fakeCheckpoints) Write(ctx context.Context, stream string, offset int) error {
	if f.WriteFunc != nil {
		if err := f.WriteFunc(stream, offset); err != nil {
			return fmt.Errorf("%w: %w", core.ErrCheckpointIO, err)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets[stream] = offset
	f.writes = append(f.writes, offset)
	return nil
}

func (f *fakeCheckpoints) Writes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.writes...)
}

// fixture wires an executor to fakes with a near-zero backoff.
type fixture struct {
	embedder    *mock.MockEmbedder
	upserter    *fakeUpserter
	checkpoints *fakeCheckpoints
	logs        *bytes.Buffer
	executor    *Executor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		embedder:    &mock.MockEmbedder{Dims: 8},
		upserter:    newFakeUpserter(),
		checkpoints: newFakeCheckpoints(),
		logs:        &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{
		WithBackoff(Backoff{Base: time.Millisecond, Cap: 2 * time.Millisecond}),
		WithLogger(logger),
	}
	executor, err := NewExecutor(f.embedder, f.upserter, f.checkpoints, append(base, opts...)...)
	require.NoError(t, err)
	f.executor = executor
	return f
}

func transient(msg string) error {
	return fmt.Errorf("%w: %s", core.ErrTransientStorage, msg)
}

func permanent(msg string) error {
	return fmt.Errorf("%w: %s", core.ErrPermanentStorage, msg)
}

func intPtr(n int) *int { return &n }

