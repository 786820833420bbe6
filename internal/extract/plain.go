package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as UTF-8 text without a byte order mark.
// Invalid sequences become U+FFFD.
func extractPlain(content []byte) (string, error) {
	s := strings.TrimPrefix(string(content), "\ufeff")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	return s, nil
}
