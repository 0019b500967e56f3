package logfmt

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	json "github.com/goccy/go-json"
)

// TimeLayout is how record timestamps are shown, in local time.
const TimeLayout = "15:04:05"

// Timestamp layouts accepted on records. The backend sends naive ISO
// 8601 (no zone), which is read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// Format renders an event as display text. All interpolated values are
// escaped. Format never panics; a record that cannot be rendered yields
// an "Error displaying log" notice line instead.
func Format(e Event) (line string) {
	defer func() {
		if r := recover(); r != nil {
			line = formatNotice(SystemNotice{Message: "Error displaying log", Error: fmt.Sprint(r)})
		}
	}()

	switch e := e.(type) {
	case RawText:
		return Escape(e.Text)
	case SystemNotice:
		return formatNotice(e)
	case BackendRecord:
		s, err := formatRecord(e)
		if err != nil {
			return formatNotice(SystemNotice{Message: "Error displaying log", Error: err.Error()})
		}
		return s
	case nil:
		return formatNotice(SystemNotice{Message: "Error displaying log", Error: "empty event"})
	default:
		return formatNotice(SystemNotice{Message: "Error displaying log", Error: fmt.Sprintf("unknown event %T", e)})
	}
}

// Escape makes s safe for display: terminal control sequences are
// removed and markup characters are HTML-escaped.
func Escape(s string) string {
	return html.EscapeString(ansi.Strip(s))
}

// ParseTimestamp parses a record timestamp.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, ts, time.Local)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, firstErr)
}

func formatNotice(n SystemNotice) string {
	s := "[SYSTEM] " + Escape(n.Message)
	if n.Error != "" {
		s += ": " + Escape(n.Error)
	}
	return s
}

func formatRecord(r BackendRecord) (string, error) {
	t, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return "", err
	}

	source := strings.ToUpper(r.Source)
	if source == "" {
		source = "UNKNOWN"
	}
	status := ""
	if r.Status != 0 {
		status = strconv.Itoa(r.Status)
	}

	var b strings.Builder
	head := fmt.Sprintf("[%s] %s %s %s %s",
		t.Local().Format(TimeLayout), Escape(source), Escape(r.Method), Escape(r.URL), status)
	b.WriteString(strings.TrimRight(head, " "))
	if r.RequestID != "" {
		id := r.RequestID
		if runes := []rune(id); len(runes) > 8 {
			id = string(runes[:8])
		}
		fmt.Fprintf(&b, " #%s", Escape(id))
	}

	if present(r.RequestPayload) {
		p, err := compact(r.RequestPayload)
		if err != nil {
			return "", fmt.Errorf("request payload: %w", err)
		}
		b.WriteString("\n  Request: " + Escape(p))
	}
	if present(r.ResponsePayload) {
		p, err := compact(r.ResponsePayload)
		if err != nil {
			return "", fmt.Errorf("response payload: %w", err)
		}
		b.WriteString("\n  Response: " + Escape(p))
	}
	if r.Detail != "" {
		b.WriteString("\n  Detail: " + Escape(r.Detail))
	}
	return b.String(), nil
}

// present reports whether a payload carries a value. JSON null counts as
// absent.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func compact(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
