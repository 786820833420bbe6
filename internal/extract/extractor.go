// Package extract loads source documents and returns their plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// FormatFunc converts the raw bytes of one file format to text.
type FormatFunc func(content []byte) (string, error)

// Extractor dispatches on file extension. Unknown extensions are read as UTF-8 text.
type Extractor struct {
	formats map[string]FormatFunc
}

// NewExtractor returns an extractor for PDF, DOCX, XLSX and plain text files.
func NewExtractor() *Extractor {
	return &Extractor{formats: map[string]FormatFunc{
		".pdf":  extractPDF,
		".docx": extractDOCX,
		".xlsx": extractExcel,
		".txt":  extractPlain,
		".md":   extractPlain,
		".rst":  extractPlain,
	}}
}

// Register adds or replaces the handler for ext (with leading dot).
func (e *Extractor) Register(ext string, fn FormatFunc) {
	e.formats[strings.ToLower(ext)] = fn
}

// Extensions lists the registered extensions in sorted order.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its text. Every failure is an models.ErrIngest.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", models.ErrIngest, path, err)
	}
	text, err := e.ExtractBytes(content, filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

// ExtractBytes converts content according to ext, e.g. ".pdf".
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.formats[strings.ToLower(ext)]
	if !ok {
		fn = extractPlain
	}
	text, err := fn(content)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrIngest, err)
	}
	return text, nil
}
