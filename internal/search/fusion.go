// Package search expands a question into query variants, searches the collection with each,
// and fuses the per-variant results into one deduplicated context set.
package search

import (
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// Fusion strategy names accepted by RetrievalConfig.Fusion.
const (
	FusionFirstOccurrence = "first"
	FusionReciprocalRank  = "rrf"
)

// rrfK dampens the contribution of top ranks in reciprocal rank fusion.
const rrfK = 60

// VariantResults is one variant's ranked search output. Err is set when that search failed.
type VariantResults struct {
	Variant string
	Chunks  []*models.RetrievedChunk
	Err     error
}

// FuseFunc merges per-variant results, given in variant order, into one ranked list.
type FuseFunc func(results []VariantResults) []*models.RetrievedChunk

// FuseFirstOccurrence unions the results deduplicating by chunk ID. A chunk keeps the position
// and score of its first occurrence, walking variants in order and then rank within each variant.
func FuseFirstOccurrence(results []VariantResults) []*models.RetrievedChunk {
	seen := make(map[string]struct{})
	var fused []*models.RetrievedChunk
	for _, vr := range results {
		if vr.Err != nil {
			continue
		}
		for _, ch := range vr.Chunks {
			if _, dup := seen[ch.ChunkID]; dup {
				continue
			}
			seen[ch.ChunkID] = struct{}{}
			out := *ch
			out.OriginatingVariant = vr.Variant
			fused = append(fused, &out)
		}
	}
	rerank(fused)
	return fused
}

// FuseReciprocalRank scores every chunk by the sum of 1/(60+rank) over the variants that returned
// it and orders by that score. Equal scores keep first-occurrence order.
func FuseReciprocalRank(results []VariantResults) []*models.RetrievedChunk {
	base := FuseFirstOccurrence(results)
	scores := make(map[string]float64, len(base))
	for _, vr := range results {
		if vr.Err != nil {
			continue
		}
		for i, ch := range vr.Chunks {
			scores[ch.ChunkID] += 1.0 / float64(rrfK+i+1)
		}
	}
	for _, ch := range base {
		ch.Score = scores[ch.ChunkID]
	}
	sort.SliceStable(base, func(i, j int) bool { return base[i].Score > base[j].Score })
	rerank(base)
	return base
}

// FuseFuncFor returns the fusion strategy called name, defaulting to first occurrence.
func FuseFuncFor(name string) FuseFunc {
	if name == FusionReciprocalRank {
		return FuseReciprocalRank
	}
	return FuseFirstOccurrence
}

func rerank(chunks []*models.RetrievedChunk) {
	for i, ch := range chunks {
		ch.Rank = i + 1
	}
}
