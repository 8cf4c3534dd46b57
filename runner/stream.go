package runner

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// Run item event names.
const (
	EventMessageOutputCreated = "message_output_created"
	EventToolCalled           = "tool_called"
	EventToolOutput           = "tool_output"
	EventHandoffRequested     = "handoff_requested"
	EventHandoffOccured       = "handoff_occured"
)

// StreamEvent is one element of a streamed run. The concrete types are
// RawResponseEvent, AgentUpdatedEvent, RunItemEvent, RunCompleteEvent and
// RunErrorEvent.
type StreamEvent interface {
	streamEvent()
}

// RawResponseEvent passes through a partial model response.
type RawResponseEvent struct {
	Agent    string
	Delta    string
	Response model.Response
}

// AgentUpdatedEvent announces the active agent: once at start, then once per handoff.
type AgentUpdatedEvent struct {
	Agent *agent.Agent
}

// RunItemEvent announces a completed conversation item.
type RunItemEvent struct {
	Name string
	Item core.Item
}

// RunCompleteEvent terminates a successful stream.
type RunCompleteEvent struct {
	Result *RunResult
}

// RunErrorEvent terminates a failed stream.
type RunErrorEvent struct {
	Err error
}

func (RawResponseEvent) streamEvent()  {}
func (AgentUpdatedEvent) streamEvent() {}
func (RunItemEvent) streamEvent()      {}
func (RunCompleteEvent) streamEvent()  {}
func (RunErrorEvent) streamEvent()     {}

func itemEventName(kind core.ItemKind) string {
	switch kind {
	case core.ItemAssistantMessage:
		return EventMessageOutputCreated
	case core.ItemToolCall:
		return EventToolCalled
	case core.ItemToolResult:
		return EventToolOutput
	case core.ItemHandoffCall:
		return EventHandoffRequested
	case core.ItemHandoffResult:
		return EventHandoffOccured
	}
	return ""
}

// eventQueue is an unbounded FIFO between the run goroutine and the consumer.
type eventQueue struct {
	mu     sync.Mutex
	events []StreamEvent
	closed bool
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev StreamEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until an event is available or the queue is closed and drained.
func (q *eventQueue) pop() (StreamEvent, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events[0] = nil
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

// StreamedRun is a run executing in the background.
type StreamedRun struct {
	queue    *eventQueue
	cancel   context.CancelFunc
	done     chan struct{}
	consumed atomic.Bool

	result *RunResult
	err    error
}

// Events returns the run's event sequence. It can be ranged over once; later
// calls yield nothing. Breaking out of the loop abandons the run: its context
// is cancelled and remaining events are discarded.
func (s *StreamedRun) Events() iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			return
		}
		for {
			ev, ok := s.queue.pop()
			if !ok {
				return
			}
			if !yield(ev) {
				s.cancel()
				return
			}
		}
	}
}

// Wait blocks until the run ends and returns its outcome.
func (s *StreamedRun) Wait() (*RunResult, error) {
	<-s.done
	return s.result, s.err
}

// Done is closed when the run ends.
func (s *StreamedRun) Done() <-chan struct{} { return s.done }

// Cancel stops the run. In-flight tool calls finish; their results are discarded.
func (s *StreamedRun) Cancel() { s.cancel() }
