package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/vectorload"
	"github.com/poiesic/vectorload/config"
	"github.com/poiesic/vectorload/ingestion"
	"github.com/poiesic/vectorload/metrics"
	"github.com/poiesic/vectorload/server"
	"github.com/poiesic/vectorload/streams"
)

const shutdownTimeout = 30 * time.Second

// signalContext is cancelled on SIGINT or SIGTERM. Running imports stop
// at the next batch boundary.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func openLoader(ctx context.Context, c *cli.Context, cfg *config.Config, opts ...vectorload.Option) (*vectorload.Loader, error) {
	opts = append([]vectorload.Option{vectorload.WithTracerProvider(tracerFrom(c))}, opts...)
	loader, err := vectorload.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open loader: %w", err)
	}
	return loader, nil
}

// runParams starts from the configured defaults and applies set flags.
func runParams(c *cli.Context, cfg *config.Config) ingestion.Params {
	params := cfg.Ingest.Params()
	if c.IsSet("batch-size") {
		params.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("max-retries") {
		retries := c.Int("max-retries")
		params.MaxRetries = &retries
	}
	if c.IsSet("resume") {
		params.Resume = c.Bool("resume")
	}
	if c.IsSet("limit") {
		params.Limit = c.Int("limit")
	}
	if c.IsSet("start") && c.Int("start") >= 0 {
		start := c.Int("start")
		params.Start = &start
	}
	return params
}

func progressOption(c *cli.Context) []vectorload.Option {
	if !c.Bool("progress") {
		return nil
	}
	return []vectorload.Option{vectorload.WithProgress(c.App.ErrWriter)}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one stream, one of %v", streams.Names())
	}
	name := c.Args().First()
	if !streams.Known(name) {
		return fmt.Errorf("%w %q", streams.ErrUnknownStream, name)
	}

	cfg := configFrom(c)
	if src := c.String("source"); src != "" {
		sc := cfg.Streams[name]
		sc.Source = src
		sc.Format = c.String("format")
		if cfg.Streams == nil {
			cfg.Streams = map[string]config.StreamConfig{}
		}
		cfg.Streams[name] = sc
	}

	ctx, stop := signalContext(c)
	defer stop()

	loader, err := openLoader(ctx, c, cfg, progressOption(c)...)
	if err != nil {
		return err
	}
	defer loader.Close()

	params := runParams(c, cfg)
	slog.Info("importing", "stream", name, "source", cfg.Streams[name].Source, "batch_size", params.BatchSize)

	result, err := loader.Import(ctx, name, params)
	if result != nil {
		if werr := writeJSON(c.App.Writer, result); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("import %s failed: %w", name, err)
	}
	return nil
}

func importAllCommand(c *cli.Context) error {
	cfg := configFrom(c)

	ctx, stop := signalContext(c)
	defer stop()

	loader, err := openLoader(ctx, c, cfg, progressOption(c)...)
	if err != nil {
		return err
	}
	defer loader.Close()

	results, err := loader.ImportAll(ctx, runParams(c, cfg))
	if err != nil {
		return err
	}

	type entry struct {
		Stream string            `json:"stream"`
		Result *ingestion.Result `json:"result,omitempty"`
		Error  string            `json:"error,omitempty"`
	}
	out := make([]entry, len(results))
	var failed []error
	for i, r := range results {
		out[i] = entry{Stream: r.Stream, Result: r.Result}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			failed = append(failed, r.Err)
		}
	}
	if err := writeJSON(c.App.Writer, out); err != nil {
		return err
	}
	return errors.Join(failed...)
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if v := c.String("addr"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := c.String("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}

	ctx, stop := signalContext(c)
	defer stop()

	m := metrics.New(cfg.Metrics.Runtime)
	loader, err := openLoader(ctx, c, cfg, vectorload.WithMetrics(m))
	if err != nil {
		return err
	}
	defer loader.Close()

	servers := []*http.Server{{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.NewHandler(loader, slog.Default()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Metrics.Addr != "" {
		servers = append(servers, m.Server(cfg.Metrics.Addr))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func migrateCommand(c *cli.Context) error {
	cfg := configFrom(c)
	ctx, stop := signalContext(c)
	defer stop()

	loader, err := openLoader(ctx, c, cfg)
	if err != nil {
		return err
	}
	defer loader.Close()

	if err := loader.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	slog.Info("tables ready", "dialect", cfg.Database.Dialect)
	return nil
}

func checkpointShowCommand(c *cli.Context) error {
	names := c.Args().Slice()
	if len(names) == 0 {
		names = streams.Names()
	}
	for _, name := range names {
		if !streams.Known(name) {
			return fmt.Errorf("%w %q", streams.ErrUnknownStream, name)
		}
	}

	store, closer, err := vectorload.OpenCheckpointStore(c.Context, configFrom(c).Checkpoint)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer closer.Close()

	for _, name := range names {
		fmt.Fprintf(c.App.Writer, "%s\t%d\n", name, store.Read(c.Context, name))
	}
	return nil
}
