// Package telemetry defines the typed events that flow over the WebSocket
// connection between the daemon and its clients: tracker samples, rotator
// park orders, and schedule step lifecycle events. Producers build events
// through the constructors here so every payload carries its type tag and
// timestamp.
package telemetry

import (
	"time"

	"github.com/jdiez17/sat-o-mat/internal/predict"
)

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventTrackerSample EventType = "tracker_sample"
	EventRotatorPark   EventType = "rotator_park"
	EventStepStarted   EventType = "step_started"
	EventStepFinished  EventType = "step_finished"
	EventRunFinished   EventType = "run_finished"
)

// Payload is implemented by every event struct; the hub accepts payloads,
// not raw maps, so producers cannot put untagged data on the wire.
type Payload interface {
	EventType() EventType
}

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// EventType returns the payload's type tag.
func (e Event) EventType() EventType { return e.Type }

// NowTS returns the current UTC time as an RFC 3339 nano string, the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func newEvent(t EventType) Event {
	return Event{Type: t, TS: NowTS()}
}

// TrackerSample carries the tracker's current pointing solution.
type TrackerSample struct {
	Event
	Sample predict.Sample `json:"sample"`
}

// NewTrackerSample stamps a sample for broadcast.
func NewTrackerSample(s predict.Sample) TrackerSample {
	return TrackerSample{Event: newEvent(EventTrackerSample), Sample: s}
}

// RotatorPark reports a park order issued to the named rotator.
type RotatorPark struct {
	Event
	Rotator string `json:"rotator"`
}

// NewRotatorPark stamps a park order for broadcast.
func NewRotatorPark(rotator string) RotatorPark {
	return RotatorPark{Event: newEvent(EventRotatorPark), Rotator: rotator}
}

// StepEvent reports a schedule step starting or finishing. Success is only
// present on step_finished events.
type StepEvent struct {
	Event
	Schedule  string `json:"schedule"`
	Step      int    `json:"step"`
	Subsystem string `json:"subsystem"`
	Success   *bool  `json:"success,omitempty"`
}

// NewStepStarted stamps a step_started event.
func NewStepStarted(schedule string, step int, subsystem string) StepEvent {
	return StepEvent{
		Event:     newEvent(EventStepStarted),
		Schedule:  schedule,
		Step:      step,
		Subsystem: subsystem,
	}
}

// NewStepFinished stamps a step_finished event with its outcome.
func NewStepFinished(schedule string, step int, subsystem string, success bool) StepEvent {
	return StepEvent{
		Event:     newEvent(EventStepFinished),
		Schedule:  schedule,
		Step:      step,
		Subsystem: subsystem,
		Success:   &success,
	}
}

// RunFinished reports the final state of a schedule execution.
type RunFinished struct {
	Event
	Schedule string `json:"schedule"`
	State    string `json:"state"`
}

// NewRunFinished stamps a run_finished event.
func NewRunFinished(schedule, state string) RunFinished {
	return RunFinished{Event: newEvent(EventRunFinished), Schedule: schedule, State: state}
}
