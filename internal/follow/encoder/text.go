package encoder

import (
	"bytes"
	"strings"
)

// invalidText replaces byte sequences that are not UTF-8.
const invalidText = "\uFFFD"

// decodeText renders a zero padded free text field. Invalid sequences turn
// into a placeholder instead of failing the block.
func decodeText(b []byte) string {
	return strings.ToValidUTF8(string(bytes.TrimRight(b, "\x00")), invalidText)
}
