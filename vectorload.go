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

// Package vectorload wires a configuration into a ready-to-run importer.
package vectorload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/checkpoint"
	"github.com/poiesic/vectorload/config"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/infer"
	"github.com/poiesic/vectorload/ingestion"
	"github.com/poiesic/vectorload/metrics"
	"github.com/poiesic/vectorload/normalize"
	"github.com/poiesic/vectorload/source"
	"github.com/poiesic/vectorload/storage"
	"github.com/poiesic/vectorload/storage/badger"
	sqlstore "github.com/poiesic/vectorload/storage/sql"
	"github.com/poiesic/vectorload/streams"
)

// ErrMigrateUnsupported is returned by Migrate when the upserter cannot
// create tables.
var ErrMigrateUnsupported = errors.New("upserter does not support migrations")

type migrator interface {
	Migrate(ctx context.Context, tables []storage.Table, dims int) error
}

// Loader owns every collaborator of an import: the store, the embedding
// provider, the checkpoint store and the runner.
type Loader struct {
	cfg         *config.Config
	upserter    storage.Upserter
	provider    ai.Provider
	checkpoints checkpoint.Store
	runner      *ingestion.Runner
	logger      *slog.Logger

	// closers are released in reverse order by Close.
	closers  []io.Closer
	backends map[string]*badger.Backend

	catalogMu sync.Mutex
	catalog   infer.Catalog
	cached    bool
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.TracerProvider
	progress    io.Writer
	provider    ai.Provider
	upserter    storage.Upserter
	checkpoints checkpoint.Store
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider sets where run spans go.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithProgress prints per-stream progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(o *options) { o.progress = w }
}

// WithProvider uses p instead of the configured embedding provider.
// The Loader closes it.
func WithProvider(p ai.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithUpserter uses u instead of opening the configured database. The
// Loader does not close it.
func WithUpserter(u storage.Upserter) Option {
	return func(o *options) { o.upserter = u }
}

// WithCheckpointStore uses s instead of the configured checkpoint store.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(o *options) { o.checkpoints = s }
}

// New validates cfg and builds a Loader. Close releases everything it opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	l := &Loader{
		cfg:      cfg,
		logger:   o.logger.With("component", "loader"),
		backends: make(map[string]*badger.Backend),
	}
	if err := l.open(ctx, o); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Loader) open(ctx context.Context, o *options) error {
	l.provider = o.provider
	if l.provider == nil {
		p, err := l.newProvider(l.cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding provider: %w", err)
		}
		l.provider = p
	}
	l.closers = append(l.closers, l.provider)

	l.upserter = o.upserter
	if l.upserter == nil {
		skillTable, _ := streams.TableFor(streams.Skills, l.cfg.StreamOptions(nil))
		store, err := sqlstore.Open(l.cfg.Database.SQL(),
			sqlstore.WithLogger(o.logger),
			sqlstore.WithSkillTable(skillTable.Name),
		)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		l.upserter = store
		l.closers = append(l.closers, store)
	}

	l.checkpoints = o.checkpoints
	if l.checkpoints == nil {
		store, err := l.newCheckpointStore(ctx, l.cfg.Checkpoint)
		if err != nil {
			return fmt.Errorf("checkpoint store: %w", err)
		}
		l.checkpoints = store
	}

	execOpts := []ingestion.Option{
		ingestion.WithLogger(o.logger),
		ingestion.WithBackoff(l.cfg.Ingest.Backoff()),
		ingestion.WithTimeouts(l.cfg.Ingest.EmbedTimeout.Duration, l.cfg.Ingest.StoreTimeout.Duration),
		ingestion.WithDimensions(l.cfg.Embedding.Dimensions),
		ingestion.WithMetrics(o.metrics),
		ingestion.WithProgress(o.progress),
	}
	if o.tracer != nil {
		execOpts = append(execOpts, ingestion.WithTracerProvider(o.tracer))
	}
	executor, err := ingestion.NewExecutor(l.provider.Embedder(), l.upserter, l.checkpoints, execOpts...)
	if err != nil {
		return err
	}

	runnerOpts := []ingestion.RunnerOption{ingestion.WithRunnerLogger(o.logger)}
	if l.cfg.Ingest.Workers > 0 {
		runnerOpts = append(runnerOpts, ingestion.WithPoolSize(l.cfg.Ingest.Workers))
	}
	l.runner, err = ingestion.NewRunner(executor, runnerOpts...)
	return err
}

// backend opens the badger database in dir once and shares it between the
// embedding cache and the KV checkpoint store.
func (l *Loader) backend(dir string) (*badger.Backend, error) {
	if b, ok := l.backends[dir]; ok {
		return b, nil
	}
	b, err := badger.OpenBackend(dir, false)
	if err != nil {
		return nil, err
	}
	l.backends[dir] = b
	l.closers = append(l.closers, b)
	return b, nil
}

// Stream builds the named stream. People and resources get a fresh tagger
// over the cached skills catalog.
func (l *Loader) Stream(ctx context.Context, name string) (ingestion.Stream, error) {
	if !streams.Known(name) {
		return ingestion.Stream{}, fmt.Errorf("%w %q", streams.ErrUnknownStream, name)
	}
	var tagger *infer.Inferer
	if streams.UsesCatalog(name) {
		var err error
		if tagger, err = l.Tagger(ctx); err != nil {
			return ingestion.Stream{}, err
		}
	}
	return l.stream(name, tagger)
}

func (l *Loader) stream(name string, tagger *infer.Inferer) (ingestion.Stream, error) {
	var t normalize.Tagger
	if tagger != nil && streams.UsesCatalog(name) {
		t = tagger
	}
	return streams.New(name, l.cfg.StreamOptions(t))
}

// Records reads the configured source of stream.
func (l *Loader) Records(name string) ([]core.RawRecord, error) {
	sc := l.cfg.Streams[name]
	if sc.Source == "" {
		return nil, fmt.Errorf("%w for stream %s", source.ErrNoSource, name)
	}
	format, err := sc.SourceFormat()
	if err != nil {
		return nil, err
	}
	return source.ReadFile(sc.Source, format)
}

// Tagger returns a new tagger over the skills catalog. Its memo lives only
// as long as the caller keeps it, typically one run.
func (l *Loader) Tagger(ctx context.Context) (*infer.Inferer, error) {
	catalog, err := l.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("skills catalog: %w", err)
	}
	return infer.NewInferer(catalog, infer.DefaultMaxTargets), nil
}

// Catalog returns the skills catalog, building it on first success. The
// skills source file is preferred; without one the stored skills are used.
// A skills import that commits rows drops the cached catalog.
func (l *Loader) Catalog(ctx context.Context) (infer.Catalog, error) {
	l.catalogMu.Lock()
	defer l.catalogMu.Unlock()
	if l.cached {
		return l.catalog, nil
	}

	catalog, from, err := l.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	l.logger.Info("skills catalog loaded", "from", from, "entries", len(catalog))
	l.catalog, l.cached = catalog, true
	return catalog, nil
}

func (l *Loader) forgetCatalog(res *ingestion.Result) {
	if res == nil || res.Upserted == 0 {
		return
	}
	l.catalogMu.Lock()
	defer l.catalogMu.Unlock()
	l.catalog, l.cached = nil, false
}

func (l *Loader) loadCatalog(ctx context.Context) (infer.Catalog, string, error) {
	opts := l.cfg.StreamOptions(nil)

	if l.cfg.Streams[streams.Skills].Source != "" {
		records, err := l.Records(streams.Skills)
		switch {
		case err == nil:
			return streams.CatalogFromRecords(records, opts.Skills), "source", nil
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("skills source missing, using stored skills", "err", err)
		default:
			return nil, "", err
		}
	}

	if stored, ok := l.upserter.(storage.SkillCatalog); ok {
		skills, err := stored.LoadSkills(ctx)
		if err != nil {
			return nil, "", err
		}
		return infer.CatalogFromSkills(skills), "database", nil
	}
	return infer.Catalog{}, "none", nil
}

// Import reads the stream's source and runs it. It fails fast with
// ingestion.ErrStreamBusy when the stream is already running.
func (l *Loader) Import(ctx context.Context, name string, params ingestion.Params) (*ingestion.Result, error) {
	if !streams.Known(name) {
		return nil, fmt.Errorf("%w %q", streams.ErrUnknownStream, name)
	}
	if l.runner.Busy(name) {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrStreamBusy, name)
	}

	stream, err := l.Stream(ctx, name)
	if err != nil {
		return nil, err
	}
	records, err := l.Records(name)
	if err != nil {
		return nil, err
	}
	res, err := l.runner.Run(ctx, stream, records, params)
	if name == streams.Skills {
		l.forgetCatalog(res)
	}
	return res, err
}

// ImportAll runs every stream with a configured source concurrently. The
// streams of one call share a tagger.
func (l *Loader) ImportAll(ctx context.Context, params ingestion.Params) ([]ingestion.JobResult, error) {
	var (
		jobs   []ingestion.Job
		tagger *infer.Inferer
	)
	for _, name := range streams.Names() {
		if l.cfg.Streams[name].Source == "" {
			continue
		}
		if streams.UsesCatalog(name) && tagger == nil {
			var err error
			if tagger, err = l.Tagger(ctx); err != nil {
				return nil, err
			}
		}
		stream, err := l.stream(name, tagger)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, ingestion.Job{
			Stream: stream,
			Load: func(context.Context) ([]core.RawRecord, error) {
				return l.Records(name)
			},
			Params: params,
		})
	}
	if len(jobs) == 0 {
		return nil, source.ErrNoSource
	}
	results := l.runner.RunAll(ctx, jobs)
	for _, r := range results {
		if r.Stream == streams.Skills {
			l.forgetCatalog(r.Result)
		}
	}
	return results, nil
}

// Checkpoint returns the stored offset of stream.
func (l *Loader) Checkpoint(ctx context.Context, name string) (int, error) {
	if !streams.Known(name) {
		return 0, fmt.Errorf("%w %q", streams.ErrUnknownStream, name)
	}
	return l.runner.Executor().Checkpoint(ctx, name), nil
}

// Migrate creates the tables of every built-in stream.
func (l *Loader) Migrate(ctx context.Context) error {
	m, ok := l.upserter.(migrator)
	if !ok {
		return ErrMigrateUnsupported
	}
	return m.Migrate(ctx, streams.Tables(l.cfg.StreamOptions(nil)), l.cfg.Embedding.Dimensions)
}

// Close releases everything the Loader opened.
func (l *Loader) Close() error {
	if l.runner != nil {
		l.runner.Release()
	}
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i].Close(); err != nil {
			l.logger.Error("error closing loader resource", "err", err)
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}
