// Package cli formats pipeline results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const snippetLength = 200

// WriteAnswer writes an answer and, when verbose, the context it was built from.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat, verbose bool) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(answer.Text))
	if !verbose {
		return nil
	}
	fmt.Fprintf(w, "\n(%d context chunks, %dms)\n", len(answer.ContextChunks), answer.QueryTime)
	if len(answer.Variants) > 1 {
		fmt.Fprintln(w, "\nSearched with:")
		for _, v := range answer.Variants {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	for _, c := range answer.ContextChunks {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] %s #%d | Score: %.4f\n", c.Rank, c.DocumentID, c.SequenceIndex, c.Score)
		if c.OriginatingVariant != "" {
			fmt.Fprintf(w, "Variant: %s\n", c.OriginatingVariant)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(strings.TrimSpace(c.Text), snippetLength))
	}
	return nil
}

// WriteIngestResult writes the outcome of an ingest call.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Ignored {
		fmt.Fprintf(w, "Collection already exists; %d document(s) ignored. Run \"kotae clear\" to rebuild it.\n", len(res.Sources))
		return nil
	}
	fmt.Fprintf(w, "Created collection from %d document(s), %d chunks.\n", res.Documents, res.Chunks)
	for _, src := range res.Sources {
		fmt.Fprintf(w, "  %s\n", src)
	}
	return nil
}

// WriteStatus writes collection statistics.
func WriteStatus(w io.Writer, stats *models.CollectionStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Collection: %s\n", stats.Name)
	fmt.Fprintf(w, "Path:       %s\n", stats.Path)
	if !stats.Exists {
		fmt.Fprintln(w, "Status:     empty (nothing ingested yet)")
		return nil
	}
	fmt.Fprintf(w, "Documents:  %d\n", stats.Documents)
	fmt.Fprintf(w, "Chunks:     %d\n", stats.Chunks)
	fmt.Fprintf(w, "Vectors:    %d (dimension %d)\n", stats.Vectors, stats.Dimension)
	if stats.EmbeddingModel != "" {
		fmt.Fprintf(w, "Model:      %s\n", stats.EmbeddingModel)
	}
	if stats.CreatedAt != "" {
		fmt.Fprintf(w, "Created:    %s\n", stats.CreatedAt)
	}
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(stats.DiskUsageBytes))
	return nil
}

// WriteDocuments writes one line per document.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %s\n", d.ID, d.SourcePath)
	}
	return nil
}

// WriteDocument writes one document's header followed by its chunks.
func WriteDocument(w io.Writer, detail *models.DocumentDetail, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, detail)
	}
	d := detail.Document
	fmt.Fprintf(w, "%s  %s\n", d.ID, d.SourcePath)
	fmt.Fprintf(w, "%d chunk(s)\n", len(detail.Chunks))
	for _, ch := range detail.Chunks {
		fmt.Fprintf(w, "\n[%d] %d-%d\n%s\n", ch.SequenceIndex, ch.StartOffset, ch.EndOffset,
			utils.Truncate(ch.Text, 200))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
