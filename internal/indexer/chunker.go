// Package indexer splits documents into chunks and ingests them into a collection.
package indexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultSeparators is the boundary priority used when a Chunker is built without separators.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Span is one segment produced by SplitText. Start and End are rune offsets into the input.
type Span struct {
	Start int
	End   int
	Text  string
}

// SplitText cuts text into segments of at most chunkSize runes. Each cut is placed after the
// last occurrence of the highest-priority separator inside the window; the empty separator
// means a hard cut at the window edge. Consecutive segments share exactly chunkOverlap runes.
// A separator only qualifies if the segment it ends is longer than chunkOverlap, so every step
// advances.
func SplitText(text string, chunkSize, chunkOverlap int, separators []string) ([]Span, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrSplit, chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrSplit, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			models.ErrSplit, chunkOverlap, chunkSize)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", models.ErrSplit)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	seps := make([][]rune, len(separators))
	for i, s := range separators {
		seps[i] = []rune(s)
	}

	runes := []rune(text)
	n := len(runes)
	var spans []Span
	start := 0
	for {
		if n-start <= chunkSize {
			spans = append(spans, Span{Start: start, End: n, Text: string(runes[start:n])})
			return spans, nil
		}
		windowEnd := start + chunkSize
		cut := windowEnd
		for _, sep := range seps {
			if len(sep) == 0 {
				break
			}
			if end := lastSeparatorEnd(runes[start:windowEnd], sep, chunkOverlap+1); end > 0 {
				cut = start + end
				break
			}
		}
		spans = append(spans, Span{Start: start, End: cut, Text: string(runes[start:cut])})
		start = cut - chunkOverlap
	}
}

// lastSeparatorEnd returns the position just after the last occurrence of sep in window,
// provided that position is at least minEnd. Returns -1 when there is none.
func lastSeparatorEnd(window, sep []rune, minEnd int) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		end := i + len(sep)
		if end < minEnd {
			return -1
		}
		if runesEqual(window[i:end], sep) {
			return end
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Chunker splits documents into chunks with a fixed size, overlap and separator priority.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// When no separators are given, DefaultSeparators is used.
func NewChunker(chunkSize, chunkOverlap int, separators ...string) *Chunker {
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   separators,
	}
}

// Split cuts doc.RawText into chunks. Chunk IDs are "<document id>:<sequence index>", so the
// same document always yields the same chunks.
func (c *Chunker) Split(doc *models.Document) ([]*models.Chunk, error) {
	spans, err := SplitText(doc.RawText, c.chunkSize, c.chunkOverlap, c.separators)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", doc.ID, err)
	}
	chunks := make([]*models.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = &models.Chunk{
			ID:            doc.ID + ":" + strconv.Itoa(i),
			DocumentID:    doc.ID,
			Text:          sp.Text,
			StartOffset:   sp.Start,
			EndOffset:     sp.End,
			SequenceIndex: i,
		}
	}
	return chunks, nil
}
