// Package logfmt decodes push-channel payloads into log events and turns
// those events into single display lines.
package logfmt

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Event is one entry destined for the log display. Exactly one of
// RawText, SystemNotice and BackendRecord.
type Event interface {
	event()
}

// RawText is a payload that could not be interpreted as a record.
type RawText struct {
	Text string
}

// SystemNotice is a client-side status line, usually about the push
// channel itself.
type SystemNotice struct {
	Message string
	Error   string
}

// BackendRecord describes one API interaction observed by the backend.
type BackendRecord struct {
	Timestamp       string          `json:"timestamp"`
	Source          string          `json:"source"`
	Method          string          `json:"method,omitempty"`
	URL             string          `json:"url,omitempty"`
	Status          int             `json:"status,omitempty"`
	RequestID       string          `json:"request_id,omitempty"`
	RequestPayload  json.RawMessage `json:"request_payload,omitempty"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	Detail          string          `json:"detail,omitempty"`
}

// UnmarshalJSON decodes a record. Status and detail are read leniently:
// a numeric string is accepted as a status, any other mistyped status is
// dropped, and a non-string detail is kept as compact JSON. A null
// payload decodes as absent.
func (r *BackendRecord) UnmarshalJSON(data []byte) error {
	type plain BackendRecord
	var wire struct {
		plain
		Status json.RawMessage `json:"status"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = BackendRecord(wire.plain)
	r.Status = lenientStatus(wire.Status)
	r.Detail = lenientText(wire.Detail)
	r.RequestPayload = dropNull(r.RequestPayload)
	r.ResponsePayload = dropNull(r.ResponsePayload)
	return nil
}

func lenientStatus(raw json.RawMessage) int {
	var n int
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

func lenientText(raw json.RawMessage) string {
	raw = dropNull(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) != nil {
		return string(raw)
	}
	return buf.String()
}

func dropNull(raw json.RawMessage) json.RawMessage {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}

func (RawText) event()       {}
func (SystemNotice) event()  {}
func (BackendRecord) event() {}

// Decode interprets one push-channel message. A JSON string becomes
// RawText, an object with a "system" field a SystemNotice, any other
// object a BackendRecord. Payloads that are not JSON yield a notice
// followed by the raw text, so the result is never empty.
func Decode(data []byte) []Event {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return []Event{
			SystemNotice{Message: "Received non-JSON message", Error: err.Error()},
			RawText{Text: string(data)},
		}
	}

	switch v := v.(type) {
	case string:
		return []Event{RawText{Text: v}}
	case map[string]any:
		if sys, ok := v["system"]; ok {
			n := SystemNotice{Message: stringify(sys)}
			if e, ok := v["error"]; ok && e != nil {
				n.Error = stringify(e)
			}
			return []Event{n}
		}
		var rec BackendRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return []Event{SystemNotice{Message: "Error displaying log", Error: err.Error()}}
		}
		return []Event{rec}
	default:
		return []Event{RawText{Text: string(data)}}
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
