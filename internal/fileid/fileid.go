// Package fileid derives stable identifiers for ingested documents.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "doc-"

// idHexLen is the number of hex digits of the path hash kept in a document ID.
const idHexLen = 16

// DocID returns the document ID for the file at absolutePath. The same cleaned path always
// yields the same ID, so re-ingesting a file does not mint a new document.
func DocID(absolutePath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return prefix + hex.EncodeToString(sum[:])[:idHexLen]
}

// ContentHash returns the hex SHA-256 of text. Documents with equal hashes have identical text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
