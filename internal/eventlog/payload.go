package eventlog

import (
	"encoding/base64"
	"encoding/hex"
	"unicode/utf8"
)

// DataFormat classifies how a payload was rendered for display or export.
type DataFormat string

const (
	FormatText   DataFormat = "text"
	FormatHex    DataFormat = "hex"
	FormatBase64 DataFormat = "base64"
)

// hexLimit is the size above which binary payloads switch from hex to
// base64 rendering. The boundary is inclusive: exactly hexLimit bytes of
// binary data still render as hex.
const hexLimit = 1024

// DecodePayload renders a raw payload for display. Valid UTF-8 passes
// through as text; anything else is binary and renders as hex up to
// hexLimit bytes, base64 beyond that.
func DecodePayload(data []byte) (string, DataFormat) {
	if utf8.Valid(data) {
		return string(data), FormatText
	}
	if len(data) <= hexLimit {
		return hex.EncodeToString(data), FormatHex
	}
	return base64.StdEncoding.EncodeToString(data), FormatBase64
}
