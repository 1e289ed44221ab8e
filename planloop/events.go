package planloop

import (
	"encoding/json"
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventReasoning        EventKind = "reasoning"
	EventToolCallStarted  EventKind = "tool_call_started"
	EventToolCallFinished EventKind = "tool_call_finished"
	EventOutputText       EventKind = "output_text"
	EventDone             EventKind = "done"
	EventError            EventKind = "error"
)

// RunEvent is a typed event emitted by the orchestration loop. Which fields
// are populated depends on Kind:
//
//   - reasoning: Text
//   - tool_call_started: Index, ToolName, Args
//   - tool_call_finished: Index, ToolName, ResultSummary, IsError
//   - output_text: Fragment
//   - done: ToolCallCount, ToolsUsed
//   - error: ErrKind, Message
//
// Events are totally ordered by emission; a done or error event is always
// the last event of a run and exactly one of them is emitted.
type RunEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`

	Text string `json:"text,omitempty"`

	Index         int             `json:"index,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	Args          json.RawMessage `json:"args,omitempty"`
	ResultSummary string          `json:"result_summary,omitempty"`
	IsError       bool            `json:"is_error,omitempty"`

	Fragment string `json:"fragment,omitempty"`

	ToolCallCount int      `json:"tool_call_count,omitempty"`
	ToolsUsed     []string `json:"tools_used,omitempty"`

	ErrKind ErrorKind `json:"error_kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// EventSink receives run events as the loop emits them. Implementations must
// return quickly; the loop delivers events synchronously to preserve order.
type EventSink interface {
	Emit(event RunEvent)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(event RunEvent)

// Emit calls f(event).
func (f SinkFunc) Emit(event RunEvent) { f(event) }

// noopSink is used when the caller does not subscribe to live events.
type noopSink struct{}

func (noopSink) Emit(RunEvent) {}

// ChannelSink delivers events to the host application via a channel. Sends
// block once the buffer fills rather than dropping: observers and the plan
// assembler rely on seeing every event, so the consumer must drain the
// channel for the duration of the run.
type ChannelSink struct {
	ch   chan RunEvent
	done chan struct{}

	mu       sync.Mutex
	sending  int
	closed   bool
	chClosed bool
}

// NewChannelSink creates a ChannelSink with a buffered channel.
func NewChannelSink(bufferSize int) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelSink{
		ch:   make(chan RunEvent, bufferSize),
		done: make(chan struct{}),
	}
}

// Emit sends an event to the channel. If the sink is closed, or closes while
// the send is blocked on a full buffer, the event is silently dropped. The
// lock is never held across the send so Close can always proceed.
func (s *ChannelSink) Emit(event RunEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.sending++
	s.mu.Unlock()

	select {
	case s.ch <- event:
	case <-s.done:
	}

	s.mu.Lock()
	s.sending--
	s.closeChLocked()
	s.mu.Unlock()
}

// Events returns the read-only event channel.
func (s *ChannelSink) Events() <-chan RunEvent {
	return s.ch
}

// Close unblocks pending Emit calls and closes the event channel once the
// last of them returns. Safe to call multiple times.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.closeChLocked()
}

// closeChLocked closes the event channel once the sink is closed and no Emit
// is mid-send. Callers must hold mu.
func (s *ChannelSink) closeChLocked() {
	if s.closed && s.sending == 0 && !s.chClosed {
		s.chClosed = true
		close(s.ch)
	}
}
