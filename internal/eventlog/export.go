package eventlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// csvHeader is the fixed export header row.
const csvHeader = "Timestamp, Type, Direction, Content, Format, Size"

// ExportCSV renders a snapshot as CSV. Free-text fields are wrapped in
// quotes with embedded quotes doubled, so payloads containing commas,
// quotes, or newlines survive a round trip through spreadsheet tooling.
// The export is a pure projection of the snapshot: it never touches the
// live log.
func ExportCSV(events []Event) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteByte('\n')

	for _, e := range events {
		content, format, size := renderContent(e)
		b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
		b.WriteByte(',')
		b.WriteString(string(e.Kind))
		b.WriteByte(',')
		b.WriteString(e.Kind.Direction())
		b.WriteByte(',')
		b.WriteString(quoteCSV(content))
		b.WriteByte(',')
		b.WriteString(string(format))
		b.WriteByte(',')
		b.WriteString(fmt.Sprintf("%d", size))
		b.WriteByte('\n')
	}
	return b.String()
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// exportedEvent is the JSON export row shape.
type exportedEvent struct {
	Timestamp string     `json:"timestamp"`
	Type      Kind       `json:"type"`
	Direction string     `json:"direction,omitempty"`
	Content   string     `json:"content"`
	DataType  DataFormat `json:"dataType,omitempty"`
	DataSize  int        `json:"dataSize"`
	Code      int        `json:"code,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// ExportJSON renders a snapshot as a JSON array with ISO-8601 timestamps
// and classified payload content.
func ExportJSON(events []Event) ([]byte, error) {
	rows := make([]exportedEvent, 0, len(events))
	for _, e := range events {
		content, format, size := renderContent(e)
		row := exportedEvent{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Type:      e.Kind,
			Direction: e.Kind.Direction(),
			Content:   content,
			DataSize:  size,
			Code:      e.Code,
			Reason:    e.Reason,
			Error:     e.Error,
		}
		if !e.Kind.System() {
			row.DataType = format
		}
		rows = append(rows, row)
	}
	return json.MarshalIndent(rows, "", "  ")
}

// renderContent picks the displayable content for an event: the classified
// payload for data frames, the error message or reason for system events.
func renderContent(e Event) (string, DataFormat, int) {
	if !e.Kind.System() {
		content, format := DecodePayload(e.Data)
		return content, format, len(e.Data)
	}
	switch {
	case e.Error != nil:
		return e.Error.Message, "", 0
	case e.Reason != "":
		return e.Reason, "", 0
	}
	return "", "", 0
}
