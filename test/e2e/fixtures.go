package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions are the formats the fixtures can produce. PDF is left out: there is
// no small way to generate one with extractable text.
var SupportedFileExtensions = []string{".txt", ".md", ".rst", ".docx", ".xlsx"}

// EncodeFile returns the bytes of a minimal file of type ext holding text.
func EncodeFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".md":
		return []byte("# Notes\n\n" + text + "\n"), nil
	case ".rst":
		return []byte("Notes\n=====\n\n" + text + "\n"), nil
	case ".docx":
		return minimalDocx(text)
	case ".xlsx":
		return minimalXlsx(text)
	default:
		return []byte(text), nil
	}
}

// WriteCorpus writes every fact into dir and returns the paths in corpus order.
func WriteCorpus(dir string, c *Corpus) ([]string, error) {
	paths := make([]string, 0, len(c.Facts))
	for _, f := range c.Facts {
		data, err := EncodeFile(f.Ext, f.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.FileName(), err)
		}
		path := filepath.Join(dir, f.FileName())
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func minimalDocx(text string) ([]byte, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	_, err = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		escaped.String() + `</w:t></w:r></w:p></w:body></w:document>`))
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
