package models

import (
	"time"
)

// EventType is the type of an event emitted while a job runs
type EventType string

const (
	// Job events
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"

	// Step events
	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"

	// Chunk and record events
	EventChunkWritten  EventType = "chunk.written"
	EventChunkRetried  EventType = "chunk.retried"
	EventRecordSkipped EventType = "record.skipped"
	EventLiveState     EventType = "live.state"
)

// Event is a generic job event
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// EventListener receives events from a job
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to the EventListener interface
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}
