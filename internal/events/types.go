// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Sweep events
	SweepStarted  EventType = "sweep.started"
	SweepFinished EventType = "sweep.finished"

	// Account events
	AccountStarted  EventType = "account.started"
	AccountFinished EventType = "account.finished"

	// Step events
	StepCompleted EventType = "step.completed"

	// Scheduler events
	CountdownTick EventType = "countdown.tick"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Publisher accepts events. The core only depends on this.
type Publisher interface {
	Publish(event Event) error
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) error { return nil }

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SweepStartedEvent is emitted before the first account of a sweep runs.
type SweepStartedEvent struct {
	BaseEvent
	SweepID  string
	Accounts int
	Workers  int
}

// SweepFinishedEvent is emitted after every account reached a terminal state.
type SweepFinishedEvent struct {
	BaseEvent
	SweepID  string
	Done     int
	Aborted  int
	Panicked int // aborted runs whose pipeline panicked; also counted in Aborted
	Duration time.Duration
}

// AccountStartedEvent is emitted when a worker picks up an account.
type AccountStartedEvent struct {
	BaseEvent
	SweepID string
	Index   int
	Total   int
	Address string
}

// AccountFinishedEvent carries the terminal pipeline state.
type AccountFinishedEvent struct {
	BaseEvent
	SweepID string
	Index   int
	Address string
	State   string
	Err     error
}

// StepCompletedEvent is emitted for every pipeline step, successful or not.
type StepCompletedEvent struct {
	BaseEvent
	Address   string
	Step      string
	Iteration int // 0 outside the swap iterations
	Status    string
	TxHash    string
	Detail    string
	Err       error
}

// CountdownTickEvent reports the time left until the next sweep.
type CountdownTickEvent struct {
	BaseEvent
	Remaining time.Duration
	Total     time.Duration
}
