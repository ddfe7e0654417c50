package vectorload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/ai/cache"
	"github.com/poiesic/vectorload/ai/inference"
	"github.com/poiesic/vectorload/ai/local"
	"github.com/poiesic/vectorload/ai/openai"
	"github.com/poiesic/vectorload/checkpoint"
	"github.com/poiesic/vectorload/config"
	"github.com/poiesic/vectorload/storage/badger"
)

// embeddingProvider layers rate limiting and caching over a base embedder.
type embeddingProvider struct {
	embedder ai.Embedder
	inner    ai.Provider
}

func (p *embeddingProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *embeddingProvider) Close() error {
	if p.inner != nil {
		return p.inner.Close()
	}
	return nil
}

// newProvider builds the configured embedder. Rate limiting wraps the
// provider call and the cache sits in front of both, so cache hits are
// never throttled.
func (l *Loader) newProvider(cfg config.EmbeddingConfig) (ai.Provider, error) {
	aiCfg := cfg.AI()
	if err := aiCfg.Validate(); err != nil {
		return nil, err
	}

	p := &embeddingProvider{}
	switch aiCfg.Kind {
	case ai.KindInference:
		e, err := inference.NewEmbedder(aiCfg)
		if err != nil {
			return nil, err
		}
		p.embedder = e
	case ai.KindOpenAI:
		inner, err := openai.NewProvider(aiCfg)
		if err != nil {
			return nil, err
		}
		p.inner = inner
		p.embedder = inner.Embedder()
	case ai.KindLocal:
		e, err := local.NewEmbedder(aiCfg)
		if err != nil {
			return nil, err
		}
		p.embedder = e
	default:
		return nil, fmt.Errorf("unknown provider kind %q", aiCfg.Kind)
	}

	p.embedder = ai.NewRateLimited(p.embedder, aiCfg.RequestsPerSecond, aiCfg.Burst)

	if cfg.CacheDir != "" {
		backend, err := l.backend(cfg.CacheDir)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		p.embedder = cache.New(p.embedder, badger.NewVectorRepository(backend), aiCfg.Kind+"/"+aiCfg.Model)
	}
	return p, nil
}

func (l *Loader) newCheckpointStore(ctx context.Context, cfg config.CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Kind {
	case config.CheckpointFile:
		return checkpoint.NewFileStore(cfg.Dir), nil
	case config.CheckpointObject:
		return checkpoint.NewObjectStore(ctx, cfg.Object.Checkpoint())
	case config.CheckpointKV:
		backend, err := l.backend(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewKVStore(badger.NewCheckpointRepository(backend)), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint kind %q", cfg.Kind)
	}
}

// OpenCheckpointStore opens the configured checkpoint store without the
// rest of a Loader. The closer releases any embedded database it opened.
func OpenCheckpointStore(ctx context.Context, cfg config.CheckpointConfig) (checkpoint.Store, io.Closer, error) {
	l := &Loader{
		logger:   slog.Default().With("component", "loader"),
		backends: make(map[string]*badger.Backend),
	}
	store, err := l.newCheckpointStore(ctx, cfg)
	if err != nil {
		l.Close()
		return nil, nil, err
	}
	return store, l, nil
}
