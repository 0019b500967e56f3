package mockserver

import (
	"time"
)

// Record sources, as they appear in the source field of broadcast logs.
const (
	SourceClientRequest  = "client_request"
	SourceServerResponse = "server_response"
	SourceServerError    = "server_error"
	SourceOllamaRequest  = "ollama_request"
	SourceOllamaResponse = "ollama_response"
	SourceOllamaError    = "ollama_error"
)

// timestampLayout matches a naive local ISO-8601 time with microseconds.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Record is one request/response log entry broadcast on /ws/logs. Empty
// fields are left out of the encoding.
type Record struct {
	Source          string `json:"source"`
	Method          string `json:"method,omitempty"`
	URL             string `json:"url,omitempty"`
	Status          int    `json:"status,omitempty"`
	RequestPayload  any    `json:"request_payload,omitempty"`
	ResponsePayload any    `json:"response_payload,omitempty"`
	Detail          string `json:"detail,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
	Timestamp       string `json:"timestamp"`
}

func stamp(r Record, now time.Time) Record {
	r.Timestamp = now.Local().Format(timestampLayout)
	return r
}

// detail is the error body shape shared by every failing route.
type detail struct {
	Detail any `json:"detail"`
}

type message struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
