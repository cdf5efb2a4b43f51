package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field keys with a fixed position in text output. Call keys lead the
// field list; the keys written by ErrorFields close the line in this order.
var (
	leadingKeys = []string{"method", "resource"}
	errorKeys   = []string{"error", "error_kind", "error_code", "grpc_code"}
)

var levelColors = map[Level]string{
	DebugLevel: "\033[90m",
	InfoLevel:  "\033[34m",
	WarnLevel:  "\033[33m",
	ErrorLevel: "\033[31m",
	FatalLevel: "\033[31m",
}

const colorReset = "\033[0m"

// TextFormatter writes one line per entry:
//
//	<time> [LEVEL] [request id] component/operation: message | call and other fields | error fields
//
// Fields are ordered deterministically. Values containing spaces, quotes or
// '=' are quoted.
type TextFormatter struct {
	// TimestampFormat is the format for timestamps
	TimestampFormat string
	// DisableColors disables terminal colors
	DisableColors bool
	// DisableTimestamp disables timestamp output
	DisableTimestamp bool
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}

// Format formats a log entry as text
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b strings.Builder

	if !f.DisableTimestamp {
		b.WriteString(entry.Timestamp.Format(f.TimestampFormat))
		b.WriteByte(' ')
	}
	b.WriteString(f.levelTag(entry.Level))
	if entry.RequestID != "" {
		b.WriteString(" [")
		b.WriteString(entry.RequestID)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	if scope := entryScope(entry); scope != "" {
		b.WriteString(scope)
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	general, failure := textFieldKeys(entry)
	writeFieldGroup(&b, entry.Fields, general)
	writeFieldGroup(&b, entry.Fields, failure)

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (f *TextFormatter) levelTag(level Level) string {
	tag := "[" + level.String() + "]"
	if f.DisableColors {
		return tag
	}
	if color, ok := levelColors[level]; ok {
		return color + tag + colorReset
	}
	return tag
}

// entryScope is the component/operation header; operation alone stays a
// plain field
func entryScope(entry *Entry) string {
	if entry.Component == "" {
		return ""
	}
	if entry.Operation == "" {
		return entry.Component
	}
	return entry.Component + "/" + entry.Operation
}

// textFieldKeys splits the entry's fields into the general group (call keys
// first, the rest sorted) and the error group, leaving out keys already
// rendered in the header
func textFieldKeys(entry *Entry) (general, failure []string) {
	inHeader := func(k string) bool {
		switch k {
		case "request_id":
			return entry.RequestID != ""
		case "component":
			return entry.Component != ""
		case "operation":
			return entry.Component != "" && entry.Operation != ""
		}
		return false
	}

	for _, k := range leadingKeys {
		if _, ok := entry.Fields[k]; ok {
			general = append(general, k)
		}
	}
	var rest []string
	for k := range entry.Fields {
		if inHeader(k) || slices.Contains(leadingKeys, k) || slices.Contains(errorKeys, k) {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	general = append(general, rest...)

	for _, k := range errorKeys {
		if _, ok := entry.Fields[k]; ok {
			failure = append(failure, k)
		}
	}
	return general, failure
}

func writeFieldGroup(b *strings.Builder, fields map[string]interface{}, keys []string) {
	if len(keys) == 0 {
		return
	}
	b.WriteString(" |")
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(textValue(fields[k]))
	}
}

func textValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return quoteIfNeeded(val)
	case error:
		return quoteIfNeeded(val.Error())
	case time.Duration:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return quoteIfNeeded(val.String())
	default:
		return quoteIfNeeded(fmt.Sprint(val))
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}

// JSONFormatter formats log entries as JSON objects. Entry metadata wins
// over fields of the same name.
type JSONFormatter struct {
	// PrettyPrint enables pretty printing
	PrettyPrint bool
	// TimestampFormat is the format for timestamps
	TimestampFormat string
	// DisableTimestamp disables timestamp output
	DisableTimestamp bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

// Format formats a log entry as JSON
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+3)
	for k, v := range entry.Fields {
		data[k] = jsonValue(v)
	}

	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if !f.DisableTimestamp {
		data["timestamp"] = entry.Timestamp.Format(f.TimestampFormat)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if f.PrettyPrint {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return buf.Bytes(), nil
}

// jsonValue keeps values that know their JSON form, SdkError included, and
// flattens plain errors and durations to strings
func jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Marshaler:
		return val
	case error:
		return val.Error()
	case time.Duration:
		return val.String()
	default:
		return v
	}
}
