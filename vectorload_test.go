package vectorload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/ai/mock"
	"github.com/poiesic/vectorload/config"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/ingestion"
	"github.com/poiesic/vectorload/source"
	"github.com/poiesic/vectorload/storage"
	"github.com/poiesic/vectorload/streams"
)

// memStore is an in-memory upserter keyed by table and natural key.
type memStore struct {
	mu     sync.Mutex
	tables map[string]map[string]storage.Row
	skills []core.Skill
	loads  int

	migrated []string
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]map[string]storage.Row)}
}

func (m *memStore) Upsert(ctx context.Context, table storage.Table, rows []storage.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table.Name]
	if !ok {
		t = make(map[string]storage.Row)
		m.tables[table.Name] = t
	}
	for _, row := range rows {
		t[row[table.KeyColumns[0]].(string)] = row
	}
	return nil
}

func (m *memStore) LoadSkills(ctx context.Context) ([]core.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.skills, nil
}

func (m *memStore) rows(table string) map[string]storage.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table]
}

// migratingStore adds schema creation to memStore.
type migratingStore struct {
	*memStore
}

func (m migratingStore) Migrate(ctx context.Context, tables []storage.Table, dims int) error {
	for _, t := range tables {
		m.migrated = append(m.migrated, t.Name)
	}
	return nil
}

const (
	skillsCSV = "name,aliases\n" +
		"Python,py|python3\n" +
		",orphan\n" +
		"SQL,structured query language\n"

	resourcesJSONL = `{"url":"https://a.example/py","title":"Python for beginners","description":"Learn the basics."}
{"url":"https://a.example/db","title":"Databases","description":"Structured Query Language from scratch","free":"yes"}
`

	peopleJSON = `[{"id":"p1","name":"Ada","position":"Data engineer","skills":["SQL"]}]`
)

func writeSources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skills.csv"), []byte(skillsCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resources.jsonl"), []byte(resourcesJSONL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.json"), []byte(peopleJSON), 0o644))
	return dir
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Dimensions = mock.DefaultDimensions
	cfg.Checkpoint.Dir = filepath.Join(dir, "checkpoints")
	cfg.Ingest.BackoffBase = config.Duration{Duration: time.Millisecond}
	cfg.Ingest.BackoffJitter = config.Duration{}
	cfg.Streams = map[string]config.StreamConfig{
		streams.Skills:    {Source: filepath.Join(dir, "skills.csv")},
		streams.Resources: {Source: filepath.Join(dir, "resources.jsonl")},
		streams.People:    {Source: filepath.Join(dir, "people.json")},
	}
	return cfg
}

func newTestLoader(t *testing.T, cfg *config.Config, store storage.Upserter) (*Loader, ai.Provider) {
	t.Helper()
	provider := mock.NewMockProvider()
	l, err := New(context.Background(), cfg, WithProvider(provider), WithUpserter(store))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, provider
}

func TestLoader_ImportSkills(t *testing.T) {
	dir := writeSources(t)
	store := newMemStore()
	l, _ := newTestLoader(t, testConfig(t, dir), store)
	ctx := context.Background()

	res, err := l.Import(ctx, streams.Skills, ingestion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.EndOffset)

	rows := store.rows("skill_node")
	require.Len(t, rows, 2)
	assert.Equal(t, `["py","python3"]`, rows["Python"]["aliases"])

	offset, err := l.Checkpoint(ctx, streams.Skills)
	require.NoError(t, err)
	assert.Equal(t, 3, offset)

	data, err := os.ReadFile(filepath.Join(dir, "checkpoints", "skills.checkpoint"))
	require.NoError(t, err)
	assert.Equal(t, "3", string(data))

	res, err = l.Import(ctx, streams.Skills, ingestion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 3, res.StartOffset, "second run resumes at the end")
	assert.Equal(t, 0, res.Upserted)
}

func TestLoader_CatalogFromSource(t *testing.T) {
	dir := writeSources(t)
	store := newMemStore()
	l, _ := newTestLoader(t, testConfig(t, dir), store)

	res, err := l.Import(context.Background(), streams.Resources, ingestion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)

	rows := store.rows("resources")
	assert.Equal(t, `["Python"]`, rows["https://a.example/py"]["skill_targets"])
	assert.Equal(t, `["SQL"]`, rows["https://a.example/db"]["skill_targets"])
	assert.Equal(t, true, rows["https://a.example/db"]["free"])
}

func TestLoader_CatalogFromStore(t *testing.T) {
	dir := writeSources(t)
	cfg := testConfig(t, dir)
	delete(cfg.Streams, streams.Skills)

	store := newMemStore()
	store.skills = []core.Skill{{Name: "Data Engineering", Aliases: []string{"data engineer"}}}
	l, _ := newTestLoader(t, cfg, store)

	inferer, err := l.Tagger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, inferer.Len())

	_, err = l.Import(context.Background(), streams.People, ingestion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, `["Data Engineering"]`, store.rows("people_profiles")["p1"]["skill_tags"])

	again, err := l.Tagger(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, inferer, again, "each run gets its own memo")
	assert.Equal(t, 1, again.Len())
	assert.Equal(t, 1, store.loads, "catalog is loaded once")
}

func TestLoader_SkillsImportRefreshesCatalog(t *testing.T) {
	dir := writeSources(t)
	l, _ := newTestLoader(t, testConfig(t, dir), newMemStore())
	ctx := context.Background()

	inferer, err := l.Tagger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inferer.Len())

	more := skillsCSV + "Go,golang\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skills.csv"), []byte(more), 0o644))

	inferer, err = l.Tagger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inferer.Len(), "cached until skills are imported")

	res, err := l.Import(ctx, streams.Skills, ingestion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Upserted)

	inferer, err = l.Tagger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, inferer.Len())
}

func TestLoader_ImportAll(t *testing.T) {
	dir := writeSources(t)
	store := newMemStore()
	l, _ := newTestLoader(t, testConfig(t, dir), store)

	results, err := l.ImportAll(context.Background(), ingestion.DefaultParams())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err, r.Stream)
	}
	assert.Equal(t, []string{"skills", "people", "resources"}, []string{results[0].Stream, results[1].Stream, results[2].Stream})
	assert.Len(t, store.rows("people_profiles"), 1)
}

func TestLoader_Errors(t *testing.T) {
	dir := writeSources(t)
	cfg := testConfig(t, dir)
	cfg.Streams[streams.People] = config.StreamConfig{}
	cfg.Streams[streams.Resources] = config.StreamConfig{Source: filepath.Join(dir, "missing.csv")}
	l, _ := newTestLoader(t, cfg, newMemStore())
	ctx := context.Background()

	_, err := l.Import(ctx, "jobs", ingestion.DefaultParams())
	assert.ErrorIs(t, err, streams.ErrUnknownStream)

	_, err = l.Import(ctx, streams.People, ingestion.DefaultParams())
	assert.ErrorIs(t, err, source.ErrNoSource)

	_, err = l.Import(ctx, streams.Resources, ingestion.DefaultParams())
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = l.Checkpoint(ctx, "jobs")
	assert.ErrorIs(t, err, streams.ErrUnknownStream)

	assert.ErrorIs(t, l.Migrate(ctx), ErrMigrateUnsupported)
}

func TestLoader_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Checkpoint.Kind = "tape"
	_, err := New(context.Background(), cfg, WithProvider(mock.NewMockProvider()), WithUpserter(newMemStore()))
	assert.Error(t, err)
}

func TestLoader_Migrate(t *testing.T) {
	store := migratingStore{newMemStore()}
	l, _ := newTestLoader(t, testConfig(t, t.TempDir()), store)

	require.NoError(t, l.Migrate(context.Background()))
	assert.Equal(t, []string{"skill_node", "people_profiles", "resources"}, store.migrated)
}

func TestLoader_CloseReleasesProvider(t *testing.T) {
	provider := mock.NewMockProvider()
	l, err := New(context.Background(), testConfig(t, t.TempDir()), WithProvider(provider), WithUpserter(newMemStore()))
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())
}

func TestLoader_LocalEmbedderWithCacheAndKV(t *testing.T) {
	dir := writeSources(t)
	cfg := testConfig(t, dir)
	cfg.Embedding = config.EmbeddingConfig{Kind: ai.KindLocal, Model: "hashing", Dimensions: 16, CacheDir: filepath.Join(dir, "kv")}
	cfg.Checkpoint = config.CheckpointConfig{Kind: config.CheckpointKV, Dir: filepath.Join(dir, "kv")}

	store := newMemStore()
	l, err := New(context.Background(), cfg, WithUpserter(store))
	require.NoError(t, err)
	defer l.Close()

	assert.Len(t, l.backends, 1, "cache and checkpoints share one badger database")

	res, err := l.Import(context.Background(), streams.Skills, ingestion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)

	offset, err := l.Checkpoint(context.Background(), streams.Skills)
	require.NoError(t, err)
	assert.Equal(t, 3, offset)

	vector, ok := store.rows("skill_node")["SQL"][streams.VectorColumn].(core.Vector)
	require.True(t, ok)
	assert.Len(t, vector, 16)
}

func TestEmbeddingProvider_Close(t *testing.T) {
	inner := mock.NewMockProvider()
	p := &embeddingProvider{embedder: inner.Embedder(), inner: inner}
	require.NoError(t, p.Close())
	assert.True(t, inner.(*mock.MockProvider).Closed())
	assert.NoError(t, (&embeddingProvider{}).Close())
}
