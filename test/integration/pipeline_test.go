// Package integration exercises the pipeline against real on-disk collections.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/watcher"
)

func testConfig(dir string) *config.Config {
	cfg := &config.Config{}
	cfg.Storage.CollectionPath = filepath.Join(dir, "collection")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 128
	cfg.LLM.Provider = "mock"
	config.ApplyDefaults(cfg)
	return cfg
}

func openPipeline(t *testing.T, cfg *config.Config) *rag.Pipeline {
	t.Helper()
	p, err := rag.New(cfg, embedding.NewMockEmbedder(cfg.Embedding.Dimensions), llm.NewEchoGenerator())
	require.NoError(t, err)
	return p
}

func TestIntegration_CollectionPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	ctx := context.Background()
	doc := filepath.Join(dir, "france.txt")
	require.NoError(t, os.WriteFile(doc, []byte("The capital of France is Paris."), 0600))

	first := openPipeline(t, cfg)
	res, err := first.Ingest(ctx, doc)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NoError(t, first.Close())

	second := openPipeline(t, cfg)
	defer second.Close()

	other := filepath.Join(dir, "japan.txt")
	require.NoError(t, os.WriteFile(other, []byte("Tokyo is the capital of Japan."), 0600))
	res, err = second.Ingest(ctx, other)
	require.NoError(t, err)
	assert.True(t, res.Ignored, "existing collection must not be rebuilt")

	answer, err := second.Ask(ctx, models.AskRequest{Question: "What is the capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, "The capital of France is Paris.", answer.Text)

	docs, err := second.Documents(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc, docs[0].SourcePath)
}

func TestIntegration_WatcherIngestsUploadBatch(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	p := openPipeline(t, cfg)
	defer p.Close()

	ingested := make(chan *models.IngestResult, 4)
	w := watcher.NewWatcher(cfg.Storage.UploadDir, cfg.Watch.Extensions,
		func(ctx context.Context, paths []string) {
			res, err := p.Ingest(ctx, paths...)
			if err == nil {
				ingested <- res
			}
		},
		watcher.WithQuietPeriod(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for name, text := range map[string]string{
		"france.txt": "The capital of France is Paris.",
		"japan.md":   "Tokyo is the capital of Japan.",
	} {
		staged := filepath.Join(cfg.Storage.UploadDir, "."+name)
		require.NoError(t, os.WriteFile(staged, []byte(text), 0600))
		require.NoError(t, os.Rename(staged, filepath.Join(cfg.Storage.UploadDir, name)))
	}

	select {
	case res := <-ingested:
		assert.True(t, res.Created)
		assert.Equal(t, 2, res.Documents, "both uploads belong to one batch")
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not ingest the uploads")
	}

	answer, err := p.Ask(context.Background(), models.AskRequest{Question: "What is the capital of Japan?", NoExpand: true})
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "Tokyo")
}
