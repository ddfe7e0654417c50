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

// Package config loads the vectorload TOML configuration file.
//
// Example:
//
//	[database]
//	dialect = "mysql"
//	host = "gateway01.us-west-2.prod.aws.tidbcloud.com"
//	user = "app.root"
//	database = "career"
//	tls_ca = "/etc/ssl/isrgrootx1.pem"
//
//	[embedding]
//	kind = "inference"
//	host = "https://generativelanguage.googleapis.com/v1beta/openai"
//	model = "gemini-embedding-001"
//
//	[streams.skills]
//	source = "data/skills.csv"
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/checkpoint"
	"github.com/poiesic/vectorload/ingestion"
	"github.com/poiesic/vectorload/normalize"
	"github.com/poiesic/vectorload/source"
	"github.com/poiesic/vectorload/storage"
	sqlstore "github.com/poiesic/vectorload/storage/sql"
	"github.com/poiesic/vectorload/streams"
)

// Checkpoint store kinds.
const (
	CheckpointFile   = "file"
	CheckpointObject = "object"
	CheckpointKV     = "kv"
)

// Duration is a time.Duration decoded from strings such as "1s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the whole configuration file.
type Config struct {
	Database   DatabaseConfig          `toml:"database"`
	Embedding  EmbeddingConfig         `toml:"embedding"`
	Checkpoint CheckpointConfig        `toml:"checkpoint"`
	Ingest     IngestConfig            `toml:"ingest"`
	Streams    map[string]StreamConfig `toml:"streams"`
	HTTP       HTTPConfig              `toml:"http"`
	Metrics    MetricsConfig           `toml:"metrics"`
	Log        LogConfig               `toml:"log"`
	Tracing    TracingConfig           `toml:"tracing"`
}

type DatabaseConfig struct {
	Dialect         string   `toml:"dialect"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	Database        string   `toml:"database"`
	TLS             bool     `toml:"tls"`
	TLSCA           string   `toml:"tls_ca"`
	SSLMode         string   `toml:"sslmode"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SessionTimeout  Duration `toml:"session_timeout"`
	DialTimeout     Duration `toml:"dial_timeout"`
}

// SQL converts to the storage configuration.
func (d DatabaseConfig) SQL() sqlstore.Config {
	return sqlstore.Config{
		Dialect:         d.Dialect,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		TLS:             d.TLS,
		TLSCA:           d.TLSCA,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime.Duration,
		SessionTimeout:  d.SessionTimeout.Duration,
		DialTimeout:     d.DialTimeout.Duration,
	}
}

type EmbeddingConfig struct {
	Kind              string   `toml:"kind"`
	Host              string   `toml:"host"`
	Model             string   `toml:"model"`
	APIKey            string   `toml:"api_key"`
	Dimensions        int      `toml:"dimensions"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`

	// CacheDir enables the on-disk embedding cache when set.
	CacheDir string `toml:"cache_dir"`
}

// AI converts to the provider configuration.
func (e EmbeddingConfig) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithKind(e.Kind),
		ai.WithHost(e.Host),
		ai.WithModel(e.Model),
		ai.WithAPIKey(e.APIKey),
		ai.WithDimensions(e.Dimensions),
		ai.WithTimeout(e.Timeout.Duration),
		ai.WithRateLimit(e.RequestsPerSecond, e.Burst),
	)
}

type CheckpointConfig struct {
	// Kind is "file", "object" or "kv".
	Kind string `toml:"kind"`

	// Dir holds checkpoint files for the file kind and the badger
	// database for the kv kind.
	Dir string `toml:"dir"`

	Object ObjectConfig `toml:"object"`
}

type ObjectConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
}

// Checkpoint converts to the object store configuration.
func (o ObjectConfig) Checkpoint() checkpoint.ObjectConfig {
	return checkpoint.ObjectConfig{
		Endpoint:  o.Endpoint,
		AccessKey: o.AccessKey,
		SecretKey: o.SecretKey,
		Region:    o.Region,
		UseSSL:    o.UseSSL,
		Bucket:    o.Bucket,
		Prefix:    o.Prefix,
	}
}

type IngestConfig struct {
	BatchSize     int      `toml:"batch_size"`
	MaxRetries    int      `toml:"max_retries"`
	Resume        bool     `toml:"resume"`
	EmbedTimeout  Duration `toml:"embed_timeout"`
	StoreTimeout  Duration `toml:"store_timeout"`
	BackoffBase   Duration `toml:"backoff_base"`
	BackoffCap    Duration `toml:"backoff_cap"`
	BackoffJitter Duration `toml:"backoff_jitter"`

	// Workers bounds the streams imported at once.
	Workers int `toml:"workers"`
}

// Params returns the default run parameters.
func (i IngestConfig) Params() ingestion.Params {
	retries := i.MaxRetries
	return ingestion.Params{BatchSize: i.BatchSize, MaxRetries: &retries, Resume: i.Resume}
}

// Backoff returns the retry wait shape.
func (i IngestConfig) Backoff() ingestion.Backoff {
	return ingestion.Backoff{
		Base:   i.BackoffBase.Duration,
		Cap:    i.BackoffCap.Duration,
		Jitter: i.BackoffJitter.Duration,
	}
}

// StreamConfig configures one import stream.
type StreamConfig struct {
	// Source is the input file. Format defaults to its extension.
	Source string `toml:"source"`
	Format string `toml:"format"`

	// Table overrides the target table name.
	Table string `toml:"table"`

	// Policy is "always" or "preserve-on-empty".
	Policy string `toml:"policy"`

	// Column selection for the skills stream.
	NameFields     []string `toml:"name_fields"`
	AliasFields    []string `toml:"alias_fields"`
	CategoryFields []string `toml:"category_fields"`
	Delimiter      string   `toml:"delimiter"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr    string `toml:"addr"`
	Runtime bool   `toml:"runtime"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`

	// File adds rotated file output next to stderr when set.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type TracingConfig struct {
	// Endpoint is an OTLP/HTTP collector such as "localhost:4318".
	// Tracing is off when empty.
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	embedding := ai.DefaultConfig()
	backoff := ingestion.DefaultBackoff()
	return &Config{
		Database: DatabaseConfig{
			Dialect:  sqlstore.DialectMySQL,
			Host:     "127.0.0.1",
			User:     "root",
			Database: "vectorload",
		},
		Embedding: EmbeddingConfig{
			Kind:       embedding.Kind,
			Host:       embedding.Host,
			Model:      embedding.Model,
			Dimensions: embedding.Dimensions,
			Timeout:    Duration{embedding.Timeout},
			Burst:      embedding.Burst,
		},
		Checkpoint: CheckpointConfig{
			Kind: CheckpointFile,
			Dir:  "checkpoints",
		},
		Ingest: IngestConfig{
			BatchSize:     ingestion.DefaultBatchSize,
			MaxRetries:    ingestion.DefaultMaxRetries,
			Resume:        true,
			EmbedTimeout:  Duration{2 * time.Minute},
			StoreTimeout:  Duration{time.Minute},
			BackoffBase:   Duration{backoff.Base},
			BackoffCap:    Duration{backoff.Cap},
			BackoffJitter: Duration{backoff.Jitter},
			Workers:       len(streams.Names()),
		},
		Streams: map[string]StreamConfig{},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tracing: TracingConfig{
			ServiceName: "vectorload",
			SampleRatio: 1,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML text over the defaults.
func Decode(data string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	sort.Strings(keys)
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

// Validate checks the configuration and reports the first problem found.
func (c *Config) Validate() error {
	db := c.Database.SQL()
	db.Normalize()
	if err := db.Validate(); err != nil {
		return fmt.Errorf("config: database: %w", err)
	}
	if err := c.Embedding.AI().Validate(); err != nil {
		return fmt.Errorf("config: embedding: %w", err)
	}

	switch c.Checkpoint.Kind {
	case CheckpointFile, CheckpointKV:
		if c.Checkpoint.Dir == "" {
			return errors.New("config: checkpoint.dir is required")
		}
	case CheckpointObject:
		if c.Checkpoint.Object.Endpoint == "" {
			return errors.New("config: checkpoint.object.endpoint is required")
		}
		if c.Checkpoint.Object.Bucket == "" {
			return errors.New("config: checkpoint.object.bucket is required")
		}
	default:
		return fmt.Errorf("config: unknown checkpoint kind %q", c.Checkpoint.Kind)
	}

	if err := c.Ingest.Params().Validate(); err != nil {
		return fmt.Errorf("config: ingest: %w", err)
	}
	if c.Ingest.Workers < 0 {
		return errors.New("config: ingest.workers must not be negative")
	}
	for _, d := range []Duration{c.Ingest.EmbedTimeout, c.Ingest.StoreTimeout, c.Ingest.BackoffBase, c.Ingest.BackoffCap, c.Ingest.BackoffJitter} {
		if d.Duration < 0 {
			return errors.New("config: ingest durations must not be negative")
		}
	}

	for name, sc := range c.Streams {
		if !streams.Known(name) {
			return fmt.Errorf("config: streams.%s: %w", name, streams.ErrUnknownStream)
		}
		if _, err := storage.ParseOverwritePolicy(sc.Policy); err != nil {
			return fmt.Errorf("config: streams.%s: %w", name, err)
		}
		if sc.Format != "" {
			if _, err := source.ParseFormat(sc.Format); err != nil {
				return fmt.Errorf("config: streams.%s: %w", name, err)
			}
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("config: tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// StreamOptions builds stream construction options from the [streams]
// tables. The tagger is supplied by the caller.
func (c *Config) StreamOptions(tagger normalize.Tagger) streams.Options {
	opts := streams.Options{
		Tagger:     tagger,
		Policies:   make(map[string]storage.OverwritePolicy),
		TableNames: make(map[string]string),
	}
	for name, sc := range c.Streams {
		if p, err := storage.ParseOverwritePolicy(sc.Policy); err == nil {
			opts.Policies[name] = p
		}
		if sc.Table != "" {
			opts.TableNames[name] = sc.Table
		}
	}
	skills := c.Streams[streams.Skills]
	opts.Skills = normalize.SkillOptions{
		NameFields:     skills.NameFields,
		AliasFields:    skills.AliasFields,
		CategoryFields: skills.CategoryFields,
		Delimiter:      skills.Delimiter,
	}
	return opts
}

// SourceFormat returns the configured format of a stream's source, or the
// one implied by its extension.
func (s StreamConfig) SourceFormat() (source.Format, error) {
	if s.Format != "" {
		return source.ParseFormat(s.Format)
	}
	return source.DetectFormat(s.Source)
}
