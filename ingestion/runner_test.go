package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/storage"
)

func TestRunner_RejectsSecondRunOfSameStream(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.upserter.UpsertFunc = func(ctx context.Context, table storage.Table, rows []storage.Row) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	runner, err := NewRunner(f.executor, WithPoolSize(2))
	require.NoError(t, err)
	defer runner.Release()

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), itemStream("items"), makeRecords(10), Params{BatchSize: 10})
		done <- err
	}()
	<-entered

	assert.True(t, runner.Busy("items"))
	res, err := runner.Run(context.Background(), itemStream("items"), makeRecords(10), Params{BatchSize: 10})
	assert.ErrorIs(t, err, ErrStreamBusy)
	assert.Nil(t, res)
	assert.False(t, runner.Busy("others"))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, runner.Busy("items"), "released after the run")

	_, err = runner.Run(context.Background(), itemStream("items"), makeRecords(10), Params{BatchSize: 10})
	assert.NoError(t, err)
}

func TestRunner_RunAll(t *testing.T) {
	f := newFixture(t)
	runner, err := NewRunner(f.executor, WithPoolSize(3))
	require.NoError(t, err)
	defer runner.Release()

	loadErr := errors.New("file not found")
	records := func(n int) func(context.Context) ([]core.RawRecord, error) {
		return func(context.Context) ([]core.RawRecord, error) { return makeRecords(n), nil }
	}

	results := runner.RunAll(context.Background(), []Job{
		{Stream: itemStream("skills"), Load: records(60), Params: Params{BatchSize: 50}},
		{Stream: itemStream("people"), Load: func(context.Context) ([]core.RawRecord, error) { return nil, loadErr }},
		{Stream: itemStream("resources"), Load: records(7), Params: Params{BatchSize: 5}},
	})
	require.Len(t, results, 3)

	assert.Equal(t, "skills", results[0].Stream)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 60, results[0].Result.Upserted)
	assert.Equal(t, 2, results[0].Result.Batches)

	assert.Equal(t, "people", results[1].Stream)
	assert.ErrorIs(t, results[1].Err, loadErr)
	assert.Nil(t, results[1].Result)

	assert.Equal(t, "resources", results[2].Stream)
	require.NoError(t, results[2].Err)
	assert.Equal(t, 7, results[2].Result.EndOffset)

	assert.Equal(t, 60, f.checkpoints.Read(context.Background(), "skills"))
	assert.Equal(t, 7, f.checkpoints.Read(context.Background(), "resources"))
	assert.Equal(t, 0, f.checkpoints.Read(context.Background(), "people"))
}

func TestNewRunner_RequiresExecutor(t *testing.T) {
	_, err := NewRunner(nil)
	assert.ErrorIs(t, err, ErrExecutorRequired)
}
