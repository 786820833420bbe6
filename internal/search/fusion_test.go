package search

import (
	"errors"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func chunks(ids ...string) []*models.RetrievedChunk {
	out := make([]*models.RetrievedChunk, len(ids))
	for i, id := range ids {
		out[i] = &models.RetrievedChunk{ChunkID: id, Text: "text " + id, Score: 1 - float64(i)*0.1, Rank: i + 1}
	}
	return out
}

func ids(chunks []*models.RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.ChunkID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFuseFirstOccurrence(t *testing.T) {
	results := []VariantResults{
		{Variant: "q", Chunks: chunks("a", "b")},
		{Variant: "v1", Chunks: chunks("c", "a")},
		{Variant: "v2", Err: errors.New("down")},
		{Variant: "v3", Chunks: chunks("b", "d")},
	}
	fused := FuseFirstOccurrence(results)
	if got, want := ids(fused), []string{"a", "b", "c", "d"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	origins := map[string]string{"a": "q", "b": "q", "c": "v1", "d": "v3"}
	for i, ch := range fused {
		if ch.OriginatingVariant != origins[ch.ChunkID] {
			t.Errorf("%s originated from %q, want %q", ch.ChunkID, ch.OriginatingVariant, origins[ch.ChunkID])
		}
		if ch.Rank != i+1 {
			t.Errorf("%s rank = %d, want %d", ch.ChunkID, ch.Rank, i+1)
		}
	}
}

func TestFuseFirstOccurrence_doesNotMutateInput(t *testing.T) {
	in := chunks("a")
	FuseFirstOccurrence([]VariantResults{{Variant: "other", Chunks: in}})
	if in[0].OriginatingVariant != "" {
		t.Error("input chunk was modified")
	}
}

func TestFuseFirstOccurrence_empty(t *testing.T) {
	if got := FuseFirstOccurrence(nil); len(got) != 0 {
		t.Errorf("expected no chunks, got %v", ids(got))
	}
}

func TestFuseReciprocalRank(t *testing.T) {
	results := []VariantResults{
		{Variant: "q", Chunks: chunks("a", "b", "c")},
		{Variant: "v1", Chunks: chunks("c", "b")},
		{Variant: "v2", Chunks: chunks("c")},
	}
	fused := FuseReciprocalRank(results)
	// c: 1/63 + 1/61 + 1/61, b: 1/62 + 1/62, a: 1/61
	if got, want := ids(fused), []string{"c", "b", "a"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if fused[2].Score != 1.0/61 {
		t.Errorf("a score = %v, want %v", fused[2].Score, 1.0/61)
	}
	if fused[0].OriginatingVariant != "q" {
		t.Errorf("c should still originate from the first variant that returned it, got %q", fused[0].OriginatingVariant)
	}
}

func TestFuseReciprocalRank_tiesKeepFirstOccurrence(t *testing.T) {
	results := []VariantResults{
		{Variant: "q", Chunks: chunks("a")},
		{Variant: "v1", Chunks: chunks("b")},
	}
	if got, want := ids(FuseReciprocalRank(results)), []string{"a", "b"}; !equalIDs(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestFuseFuncFor(t *testing.T) {
	results := []VariantResults{
		{Variant: "q", Chunks: chunks("a", "b")},
		{Variant: "v1", Chunks: chunks("b")},
	}
	if got := ids(FuseFuncFor("rrf")(results)); got[0] != "b" {
		t.Errorf("rrf should promote b, got %v", got)
	}
	if got := ids(FuseFuncFor("")(results)); got[0] != "a" {
		t.Errorf("default should be first occurrence, got %v", got)
	}
}
