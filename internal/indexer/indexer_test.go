package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kotae/internal/collection"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

type recordingStore struct {
	docs    []*models.Document
	chunks  []*models.Chunk
	created bool
	err     error
	calls   int
}

func (s *recordingStore) GetOrCreate(_ context.Context, docs []*models.Document, chunks []*models.Chunk) (*collection.Collection, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	s.docs, s.chunks = docs, chunks
	return nil, s.created, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestIngestor(store CollectionStore) *Ingestor {
	return NewIngestor(extract.NewExtractor(), NewChunker(40, 10), store)
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{"txt", "md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".pdf", []string{".txt", ".md", ".pdf"}, true},
	}
	for _, tt := range tests {
		got := ExtensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paris.txt", "The capital of France is Paris.\r\n")
	doc, err := newTestIngestor(&recordingStore{}).LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != fileid.DocID(path) {
		t.Errorf("ID = %q, want %q", doc.ID, fileid.DocID(path))
	}
	if doc.Title != "paris.txt" || doc.SourcePath != path {
		t.Errorf("unexpected doc: title=%q source=%q", doc.Title, doc.SourcePath)
	}
	if doc.RawText != "The capital of France is Paris." {
		t.Errorf("RawText = %q", doc.RawText)
	}
	if doc.Metadata[MetaContentHash] != fileid.ContentHash(doc.RawText) || doc.Metadata[MetaExtension] != ".txt" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

func TestLoadFile_errors(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.pdf", "not a pdf")
	in := newTestIngestor(&recordingStore{})
	for name, path := range map[string]string{
		"missing":   filepath.Join(dir, "missing.txt"),
		"directory": dir,
		"corrupt":   broken,
	} {
		if _, err := in.LoadFile(path); !errors.Is(err, models.ErrIngest) {
			t.Errorf("%s: expected ErrIngest, got %v", name, err)
		}
	}
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Alpha paragraph one.\n\nAlpha paragraph two is a bit longer than forty.")
	b := writeFile(t, dir, "b.md", "Bravo.")
	store := &recordingStore{created: true}

	res, err := newTestIngestor(store).IngestFiles(context.Background(), a, b, a)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Ignored {
		t.Errorf("result = %+v", res)
	}
	if res.Documents != 2 || len(store.docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", res.Documents)
	}
	if res.Chunks != len(store.chunks) || res.Chunks < 3 {
		t.Errorf("chunks = %d (store has %d)", res.Chunks, len(store.chunks))
	}
	if res.Sources[0] != a || res.Sources[1] != b {
		t.Errorf("sources = %v", res.Sources)
	}
	for _, ch := range store.chunks {
		if ch.Len() > 40 {
			t.Errorf("chunk %s longer than chunk size: %d", ch.ID, ch.Len())
		}
	}
}

func TestIngestFiles_existingCollectionIsIgnored(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Alpha.")
	res, err := newTestIngestor(&recordingStore{created: false}).IngestFiles(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created || !res.Ignored {
		t.Errorf("result = %+v", res)
	}
}

func TestIngestFiles_identicalContentOnce(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Same text.")
	b := writeFile(t, dir, "copy/a.txt", "Same text.")
	store := &recordingStore{created: true}
	res, err := newTestIngestor(store).IngestFiles(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if res.Documents != 1 {
		t.Errorf("expected duplicate content to be ingested once, got %d documents", res.Documents)
	}
}

func TestIngestFiles_failsAsAWhole(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Fine.")
	empty := writeFile(t, dir, "empty.txt", "   \n\n ")
	store := &recordingStore{created: true}

	_, err := newTestIngestor(store).IngestFiles(context.Background(), good, empty)
	if !errors.Is(err, models.ErrSplit) {
		t.Errorf("expected ErrSplit for empty document, got %v", err)
	}
	_, err = newTestIngestor(store).IngestFiles(context.Background(), good, filepath.Join(dir, "missing.txt"))
	if !errors.Is(err, models.ErrIngest) {
		t.Errorf("expected ErrIngest for missing file, got %v", err)
	}
	if store.calls != 0 {
		t.Errorf("collection should not be touched on failure, got %d calls", store.calls)
	}
}

func TestIngestFiles_noPaths(t *testing.T) {
	if _, err := newTestIngestor(&recordingStore{}).IngestFiles(context.Background()); !errors.Is(err, models.ErrIngest) {
		t.Errorf("expected ErrIngest, got %v", err)
	}
}

func TestIngestFiles_storeError(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Alpha.")
	store := &recordingStore{err: models.ErrEmbeddingService}
	if _, err := newTestIngestor(store).IngestFiles(context.Background(), a); !errors.Is(err, models.ErrEmbeddingService) {
		t.Errorf("expected ErrEmbeddingService, got %v", err)
	}
}

func TestIngestFiles_excel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Excel searchable content")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	store := &recordingStore{created: true}
	if _, err := newTestIngestor(store).IngestFiles(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if store.docs[0].RawText != "Sheet1\nExcel searchable content" {
		t.Errorf("RawText = %q", store.docs[0].RawText)
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "file b")
	writeFile(t, dir, "a.txt", "file a")
	writeFile(t, dir, "sub/c.txt", "file c")
	writeFile(t, dir, "skip.xyz", "skip")

	store := &recordingStore{created: true}
	res, err := newTestIngestor(store).IngestDirectory(context.Background(), dir, []string{".txt"})
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if res.Documents != 3 {
		t.Fatalf("ingested %d files, want 3", res.Documents)
	}
	want := []string{"a.txt", "b.txt", filepath.Join("sub", "c.txt")}
	for i, src := range res.Sources {
		if src != filepath.Join(dir, want[i]) {
			t.Errorf("source %d = %s, want %s", i, src, want[i])
		}
	}
}

func TestIngestDirectory_noMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "skip.xyz", "skip")
	if _, err := newTestIngestor(&recordingStore{}).IngestDirectory(context.Background(), dir, []string{".txt"}); !errors.Is(err, models.ErrIngest) {
		t.Errorf("expected ErrIngest, got %v", err)
	}
}

func TestIngestFiles_withCollection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paris.txt", "The capital of France is Paris.")
	mgr := collection.NewManager("test", filepath.Join(dir, "collection"), embedding.NewMockEmbedder(32))
	t.Cleanup(func() { _ = mgr.Close() })
	in := NewIngestor(extract.NewExtractor(), NewChunker(1200, 300), mgr)

	res, err := in.IngestFiles(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Chunks != 1 {
		t.Errorf("result = %+v", res)
	}
	coll, err := mgr.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	hits, err := mgr.Search(context.Background(), coll, "capital of France", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Text != "The capital of France is Paris." {
		t.Errorf("hits = %+v", hits)
	}
}
