package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestSQLiteStorage_Documents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	docs := []*models.Document{
		{ID: "doc1", Title: "First", SourcePath: "/a.txt", RawText: "Content one", Metadata: map[string]interface{}{"k": "v"}},
		{ID: "doc2", Title: "Second", SourcePath: "/b.txt", RawText: "Content two"},
	}
	if err := store.CreateDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}
	if docs[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "First" || got.RawText != "Content one" || got.SourcePath != "/a.txt" {
		t.Errorf("got %+v", got)
	}
	if got.Metadata["k"] != "v" {
		t.Errorf("metadata not round-tripped: %v", got.Metadata)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "doc1" || list[1].ID != "doc2" {
		t.Errorf("expected documents in insertion order, got %v", list)
	}

	_, err = store.GetDocument(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_Chunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	_ = store.CreateDocuments(ctx, []*models.Document{{ID: "d1", RawText: "chunk1 chunk2 chunk3"}})

	chunks := []*models.Chunk{
		{ID: "d1:0", DocumentID: "d1", Text: "chunk1", StartOffset: 0, EndOffset: 6, SequenceIndex: 0},
		{ID: "d1:1", DocumentID: "d1", Text: "chunk2", StartOffset: 7, EndOffset: 13, SequenceIndex: 1},
		{ID: "d1:2", DocumentID: "d1", Text: "chunk3", StartOffset: 14, EndOffset: 20, SequenceIndex: 2},
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	list, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[2].SequenceIndex != 2 {
		t.Errorf("expected 3 ordered chunks, got %d", len(list))
	}

	if got := list[1]; got.Text != "chunk2" || got.StartOffset != 7 || got.EndOffset != 13 {
		t.Errorf("got %+v", got)
	}

	byID, err := store.GetChunks(ctx, []string{"d1:0", "d1:2", "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 2 || byID["d1:2"].Text != "chunk3" {
		t.Errorf("GetChunks = %v", byID)
	}

	if none, err := store.GetChunksByDocumentID(ctx, "nope"); err != nil || len(none) != 0 {
		t.Errorf("unknown document: got %v, %v", none, err)
	}
}

func TestSQLiteStorage_Meta(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.SetMeta(ctx, map[string]string{MetaDimensions: "768", MetaEmbeddingModel: "nomic-embed-text"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMeta(ctx, map[string]string{MetaDimensions: "384"}); err != nil {
		t.Fatal(err)
	}
	v, err := store.GetMeta(ctx, MetaDimensions)
	if err != nil || v != "384" {
		t.Errorf("GetMeta(dimensions) = %q, %v", v, err)
	}
	if _, err := store.GetMeta(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "count.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	n, err := store.CountDocuments(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountDocuments: %v, %d", err, n)
	}
	_ = store.CreateDocuments(ctx, []*models.Document{{ID: "x", RawText: "c"}})
	_ = store.BatchCreateChunks(ctx, []*models.Chunk{{ID: "x:0", DocumentID: "x", Text: "c", EndOffset: 1}})
	n, _ = store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 document, got %d", n)
	}
	n, _ = store.CountChunks(ctx)
	if n != 1 {
		t.Errorf("expected 1 chunk, got %d", n)
	}
}

func TestOpenSQLiteStorage(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := OpenSQLiteStorage(filepath.Join(dir, "absent.db")); err == nil {
			t.Error("expected error for missing database")
		}
		if _, err := os.Stat(filepath.Join(dir, "absent.db")); !os.IsNotExist(err) {
			t.Error("opening must not create the database")
		}
	})

	t.Run("not a database", func(t *testing.T) {
		p := filepath.Join(dir, "garbage.db")
		_ = os.WriteFile(p, []byte("definitely not sqlite"), 0600)
		if _, err := OpenSQLiteStorage(p); err == nil {
			t.Error("expected error for garbage file")
		}
	})

	t.Run("existing collection", func(t *testing.T) {
		p := filepath.Join(dir, "ok.db")
		created, err := NewSQLiteStorage(p)
		if err != nil {
			t.Fatal(err)
		}
		_ = created.CreateDocuments(context.Background(), []*models.Document{{ID: "a", RawText: "x"}})
		_ = created.Close()

		opened, err := OpenSQLiteStorage(p)
		if err != nil {
			t.Fatal(err)
		}
		defer opened.Close()
		n, _ := opened.CountDocuments(context.Background())
		if n != 1 {
			t.Errorf("expected 1 document, got %d", n)
		}
	})
}
