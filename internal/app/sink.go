package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/phonemulator/console/internal/client"
	"github.com/phonemulator/console/internal/logfmt"
)

// ProgramSink forwards display output to a running Bubble Tea program as
// messages. Messages sent before Attach are queued and replayed in order.
type ProgramSink struct {
	mu      sync.Mutex
	p       *tea.Program
	pending []tea.Msg
}

// Attach binds the sink to p. Queued messages are replayed from a
// goroutine, since Send blocks until the program runs; later messages
// keep queueing until the replay has drained.
func (s *ProgramSink) Attach(p *tea.Program) {
	go func() {
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.p = p
				s.mu.Unlock()
				return
			}
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()

			for _, msg := range batch {
				p.Send(msg)
			}
		}
	}()
}

// ShowStatus implements display.Sink.
func (s *ProgramSink) ShowStatus(text string, isError bool) {
	s.send(StatusMsg{Text: text, IsError: isError})
}

// AppendLogLine implements display.Sink.
func (s *ProgramSink) AppendLogLine(text string) {
	s.send(LogLineMsg{Text: text})
}

// ObserveEvent implements display.EventObserver. Backend records feed the
// traffic view.
func (s *ProgramSink) ObserveEvent(e logfmt.Event) {
	if rec, ok := e.(logfmt.BackendRecord); ok {
		s.send(RecordMsg{Record: rec})
	}
}

// ConnState is a WSClient state observer.
func (s *ProgramSink) ConnState(state client.State) {
	s.send(ConnStateMsg{State: state})
}

func (s *ProgramSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	if p == nil {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	p.Send(msg)
}
