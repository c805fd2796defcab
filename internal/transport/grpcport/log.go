package grpcport

import "fmt"

// maxLogBodyLen caps message bodies in debug logs.
const maxLogBodyLen = 256

// truncateForLog shortens a message body for debug logging, keeping the
// original length visible.
func truncateForLog(s string) string {
	if len(s) <= maxLogBodyLen {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes total)", s[:maxLogBodyLen], len(s))
}
