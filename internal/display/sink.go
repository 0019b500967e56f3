// Package display defines the output targets the client writes to and
// the pipeline that feeds push-channel events into them.
package display

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/phonemulator/console/internal/logfmt"
)

// Sink receives user-visible output. Implementations must be safe for
// concurrent use: request outcomes and pushed log lines arrive from
// different goroutines.
type Sink interface {
	ShowStatus(text string, isError bool)
	AppendLogLine(text string)
}

// EventObserver is implemented by sinks that also want the decoded event
// behind each log line. Pump calls ObserveEvent before AppendLogLine.
type EventObserver interface {
	ObserveEvent(e logfmt.Event)
}

// WriterSink writes status and log lines to an io.Writer, one per line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a Sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) ShowStatus(text string, isError bool) {
	prefix := "OK: "
	if isError {
		prefix = "ERROR: "
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, prefix+ansi.Strip(text))
}

func (s *WriterSink) AppendLogLine(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, text)
}

// Pump formats events and appends them to sink in the order received.
// It returns when ctx is done or events is closed.
func Pump(ctx context.Context, events <-chan logfmt.Event, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if o, ok := sink.(EventObserver); ok {
				o.ObserveEvent(e)
			}
			sink.AppendLogLine(logfmt.Format(e))
		}
	}
}
