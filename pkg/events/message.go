package events

import (
	"fmt"
	"strings"
)

const maxMessageLength = 256

// FormatMessage builds a single-line event message: newlines and tabs become
// spaces, runs of spaces collapse and long messages are truncated.
func FormatMessage(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)

	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.ReplaceAll(msg, "\t", " ")

	for strings.Contains(msg, "  ") {
		msg = strings.ReplaceAll(msg, "  ", " ")
	}

	msg = strings.TrimSpace(msg)

	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength-3] + "..."
	}

	return msg
}
