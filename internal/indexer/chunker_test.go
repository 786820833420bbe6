package indexer

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestSplitText_noBoundaries(t *testing.T) {
	text := strings.Repeat("a", 3000)
	spans, err := SplitText(text, 1200, 300, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(spans))
	}
	wantStarts := []int{0, 900, 1800}
	for i, sp := range spans {
		if sp.Start != wantStarts[i] {
			t.Errorf("chunk %d start = %d, want %d", i, sp.Start, wantStarts[i])
		}
		if sp.End-sp.Start > 1200 {
			t.Errorf("chunk %d length %d exceeds 1200", i, sp.End-sp.Start)
		}
	}
	if spans[2].End != 3000 {
		t.Errorf("last chunk should end at 3000, got %d", spans[2].End)
	}
	assertOverlap(t, spans, 300)
}

func TestSplitText_prefersParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("word ", 30) // 150 runes
	para2 := strings.Repeat("next ", 30)
	text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)
	spans, err := SplitText(text, 200, 20, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(spans))
	}
	if !strings.HasSuffix(spans[0].Text, "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got %q", tail(spans[0].Text, 10))
	}
	assertOverlap(t, spans, 20)
}

func TestSplitText_fallsBackToWordBoundary(t *testing.T) {
	text := strings.Repeat("abcd ", 100) // 500 runes, no paragraph or line breaks
	spans, err := SplitText(text, 120, 30, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}
	for i, sp := range spans[:len(spans)-1] {
		if !strings.HasSuffix(sp.Text, " ") {
			t.Errorf("chunk %d should end after a space, got %q", i, tail(sp.Text, 6))
		}
		if sp.End-sp.Start > 120 {
			t.Errorf("chunk %d length %d exceeds 120", i, sp.End-sp.Start)
		}
	}
	assertOverlap(t, spans, 30)
}

func TestSplitText_multibyteOffsetsAreRunes(t *testing.T) {
	text := strings.Repeat("日本語", 100) // 300 runes, 900 bytes
	spans, err := SplitText(text, 100, 10, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}
	runes := []rune(text)
	for i, sp := range spans {
		if got := string(runes[sp.Start:sp.End]); got != sp.Text {
			t.Errorf("chunk %d text does not match its offsets", i)
		}
	}
	if last := spans[len(spans)-1]; last.End != 300 {
		t.Errorf("last chunk should end at rune 300, got %d", last.End)
	}
}

func TestSplitText_shortTextIsOneChunk(t *testing.T) {
	spans, err := SplitText("The capital of France is Paris.", 1200, 300, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 1 || spans[0].Start != 0 || spans[0].Text != "The capital of France is Paris." {
		t.Errorf("unexpected spans: %+v", spans)
	}
}

func TestSplitText_errors(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		size, overlap int
	}{
		{"overlap equals size", "hello", 10, 10},
		{"overlap exceeds size", "hello", 10, 20},
		{"zero size", "hello", 0, 0},
		{"negative overlap", "hello", 10, -1},
		{"empty text", "", 10, 2},
		{"whitespace text", " \n\t ", 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := SplitText(tt.text, tt.size, tt.overlap, nil)
			if !errors.Is(err, models.ErrSplit) {
				t.Fatalf("expected ErrSplit, got %v", err)
			}
			if spans != nil {
				t.Errorf("expected no partial output, got %d spans", len(spans))
			}
		})
	}
}

func TestSplitText_deterministic(t *testing.T) {
	text := strings.Repeat("Sentence one. Sentence two!\nLine three? ", 80)
	a, err := SplitText(text, 256, 64, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := SplitText(text, 256, 64, DefaultSeparators)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestChunker_Split(t *testing.T) {
	c := NewChunker(10, 2)
	doc := &models.Document{ID: "doc1", RawText: "one two three four five six seven"}
	chunks, err := c.Split(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Errorf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d DocumentID=%s", i, ch.DocumentID)
		}
		if ch.SequenceIndex != i {
			t.Errorf("chunk %d SequenceIndex=%d", i, ch.SequenceIndex)
		}
		if ch.Len() > 10 {
			t.Errorf("chunk %d length %d exceeds 10", i, ch.Len())
		}
	}
	if chunks[0].ID != "doc1:0" {
		t.Errorf("chunk ID = %s, want doc1:0", chunks[0].ID)
	}
}

func TestChunker_SplitEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	_, err := c.Split(&models.Document{ID: "d", RawText: "   \n\t  "})
	if !errors.Is(err, models.ErrSplit) {
		t.Errorf("empty text should return ErrSplit, got %v", err)
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a  b  ", "a b"},
		{"line one\r\nline two", "line one\nline two"},
		{"para one\n\n\n\npara two", "para one\n\npara two"},
		{"tab\tseparated\x00text", "tab separatedtext"},
	}
	for _, tt := range tests {
		if got := Preprocess(tt.in); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func assertOverlap(t *testing.T, spans []Span, overlap int) {
	t.Helper()
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.Start != prev.End-overlap {
			t.Errorf("chunk %d starts at %d, want %d", i, cur.Start, prev.End-overlap)
			continue
		}
		prevRunes := []rune(prev.Text)
		curRunes := []rune(cur.Text)
		if string(prevRunes[len(prevRunes)-overlap:]) != string(curRunes[:overlap]) {
			t.Errorf("chunk %d does not begin with the last %d characters of chunk %d", i, overlap, i-1)
		}
	}
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
