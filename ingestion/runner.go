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
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/vectorload/core"
)

// Runner executes runs of distinct streams concurrently on a worker pool and
// allows at most one in-flight run per stream.
type Runner struct {
	executor *Executor
	pool     *ants.Pool
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner) error

// WithPoolSize sets how many streams run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) RunnerOption {
	return func(r *Runner) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithRunnerLogger sets a custom logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRunner creates a runner around executor.
func NewRunner(executor *Executor, opts ...RunnerOption) (*Runner, error) {
	if executor == nil {
		return nil, ErrExecutorRequired
	}

	pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
	if err != nil {
		return nil, err
	}
	r := &Runner{
		executor: executor,
		pool:     pool,
		logger:   slog.Default(),
		running:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			r.Release()
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "runner")
	return r, nil
}

// Executor returns the wrapped executor.
func (r *Runner) Executor() *Executor {
	return r.executor
}

// Busy reports whether a run of stream is in flight.
func (r *Runner) Busy(stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[stream]
	return ok
}

func (r *Runner) acquire(stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[stream]; ok {
		return false
	}
	r.running[stream] = struct{}{}
	return true
}

func (r *Runner) release(stream string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, stream)
}

// Run executes one stream on the calling goroutine.
// It returns ErrStreamBusy without a result when the stream is already running.
func (r *Runner) Run(ctx context.Context, stream Stream, records []core.RawRecord, params Params) (*Result, error) {
	if !r.acquire(stream.Name) {
		return nil, fmt.Errorf("%w: %s", ErrStreamBusy, stream.Name)
	}
	defer r.release(stream.Name)
	return r.executor.Run(ctx, stream, records, params)
}

// Job is one stream's work for RunAll. Load is called on the worker, so
// large sources are read concurrently too.
type Job struct {
	Stream Stream
	Load   func(ctx context.Context) ([]core.RawRecord, error)
	Params Params
}

// JobResult pairs a job's stream with its outcome.
type JobResult struct {
	Stream string
	Result *Result
	Err    error
}

// RunAll executes jobs concurrently, one per stream, and waits for all of
// them. Results are in job order. A failed job does not stop the others.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		results[i].Stream = job.Stream.Name
		wg.Add(1)
		task := func() {
			defer wg.Done()
			records, err := job.Load(ctx)
			if err != nil {
				results[i].Err = fmt.Errorf("load %s: %w", job.Stream.Name, err)
				return
			}
			results[i].Result, results[i].Err = r.Run(ctx, job.Stream, records, job.Params)
		}
		if err := r.pool.Submit(task); err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submit %s: %w", job.Stream.Name, err)
		}
	}
	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			r.logger.Error("stream failed", "stream", res.Stream, "err", res.Err)
		}
	}
	return results
}

// Release releases the worker pool.
// The runner should not be used after calling Release.
func (r *Runner) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}
