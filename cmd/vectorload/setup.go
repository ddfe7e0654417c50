package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/vectorload/config"
)

const (
	metaConfig   = "config"
	metaLogFile  = "log-file"
	metaShutdown = "tracing-shutdown"
	metaTracer   = "tracer"
)

// setup loads the configuration, applies global flags over it and
// installs the default logger and tracer.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyGlobalFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.App.Metadata = map[string]any{metaConfig: cfg}

	logFile, err := setupLogger(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return err
	}
	if logFile != nil {
		c.App.Metadata[metaLogFile] = logFile
	}

	tp, shutdown, err := setupTracing(c.Context, cfg.Tracing)
	if err != nil {
		return err
	}
	c.App.Metadata[metaTracer] = tp
	c.App.Metadata[metaShutdown] = shutdown
	return nil
}

func teardown(c *cli.Context) error {
	if shutdown, ok := c.App.Metadata[metaShutdown].(func(context.Context) error); ok {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("tracer shutdown failed", "err", err)
		}
	}
	if f, ok := c.App.Metadata[metaLogFile].(io.Closer); ok {
		return f.Close()
	}
	return nil
}

func applyGlobalFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := c.String("log-file"); v != "" {
		cfg.Log.File = v
	}
	if v := c.String("otlp-endpoint"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := c.String("db-password"); v != "" {
		cfg.Database.Password = v
	}
	if v := c.String("embedding-api-key"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := c.String("s3-access-key"); v != "" {
		cfg.Checkpoint.Object.AccessKey = v
	}
	if v := c.String("s3-secret-key"); v != "" {
		cfg.Checkpoint.Object.SecretKey = v
	}
}

func configFrom(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[metaConfig].(*config.Config)
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}

func tracerFrom(c *cli.Context) trace.TracerProvider {
	tp, _ := c.App.Metadata[metaTracer].(trace.TracerProvider)
	return tp
}

// setupLogger installs the default slog logger. With a log file configured
// output goes to both stderr and the rotated file, which is returned for
// closing.
func setupLogger(cfg config.LogConfig, stderr io.Writer) (io.Closer, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	var (
		out     = stderr
		rotated *lumberjack.Logger
	)
	if cfg.File != "" {
		rotated = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(stderr, rotated)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}
	slog.SetDefault(slog.New(handler))

	if rotated == nil {
		return nil, nil
	}
	return rotated, nil
}

// setupTracing exports spans over OTLP/HTTP when an endpoint is configured.
// Otherwise the global provider is returned untouched.
func setupTracing(ctx context.Context, cfg config.TracingConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return otel.GetTracerProvider(), func(context.Context) error { return nil }, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, tp.Shutdown, nil
}
