package orchestrator

import (
	"fmt"
	"sync"
)

// EventKind discriminates the two ProgressEvent variants.
type EventKind string

const (
	EventLog    EventKind = "log"
	EventStatus EventKind = "status"
)

// ProgressEvent is either a log line or a (label, percent) status update.
// Percent is always within [0, 100].
type ProgressEvent struct {
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Label   string    `json:"label,omitempty"`
	Percent float64   `json:"percent"`
}

// LogLine builds a log-line event.
func LogLine(text string) ProgressEvent {
	return ProgressEvent{Kind: EventLog, Text: text}
}

// Status builds a status event, clamping percent into [0, 100].
func Status(label string, percent float64) ProgressEvent {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	return ProgressEvent{Kind: EventStatus, Label: label, Percent: percent}
}

// ProgressSink receives events from the orchestrator. Emit must not block on
// the consumer.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(ProgressEvent)

func (f SinkFunc) Emit(event ProgressEvent) { f(event) }

type discardSink struct{}

func (discardSink) Emit(ProgressEvent) {}

// ProgressReporter is a single-producer, single-consumer event stream. Emit
// never blocks and never drops: events queue internally and a relay goroutine
// delivers them in order on the subscriber channel. The consumer must drain
// the channel until it is closed.
type ProgressReporter struct {
	mu     sync.Mutex
	queue  []ProgressEvent
	closed bool

	wake chan struct{}
	out  chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter and starts its relay goroutine.
func NewProgressReporter() *ProgressReporter {
	pr := &ProgressReporter{
		wake: make(chan struct{}, 1),
		out:  make(chan ProgressEvent),
	}
	go pr.relay()
	return pr
}

// Emit queues an event for delivery. Events emitted after Close are ignored.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	pr.mu.Lock()
	if pr.closed {
		pr.mu.Unlock()
		return
	}
	pr.queue = append(pr.queue, event)
	pr.mu.Unlock()
	pr.signal()
}

// Subscribe returns the channel events are delivered on.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.out
}

// Close stops accepting events. Already queued events are still delivered
// before the subscriber channel is closed. Close is idempotent.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	if pr.closed {
		pr.mu.Unlock()
		return
	}
	pr.closed = true
	pr.mu.Unlock()
	pr.signal()
}

func (pr *ProgressReporter) signal() {
	select {
	case pr.wake <- struct{}{}:
	default:
	}
}

func (pr *ProgressReporter) relay() {
	defer close(pr.out)
	for {
		pr.mu.Lock()
		for len(pr.queue) == 0 && !pr.closed {
			pr.mu.Unlock()
			<-pr.wake
			pr.mu.Lock()
		}
		if len(pr.queue) == 0 && pr.closed {
			pr.mu.Unlock()
			return
		}
		batch := pr.queue
		pr.queue = nil
		pr.mu.Unlock()

		for _, ev := range batch {
			pr.out <- ev
		}
	}
}

// FormatProgress formats a ProgressEvent as a terminal line.
func FormatProgress(event ProgressEvent) string {
	switch event.Kind {
	case EventLog:
		return event.Text
	case EventStatus:
		return fmt.Sprintf("  [%3.0f%%] %s", event.Percent, event.Label)
	default:
		return fmt.Sprintf("  ? %s", event.Text)
	}
}
