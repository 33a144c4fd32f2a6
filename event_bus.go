package riot

import (
	"sync"
	"time"

	"github.com/corey-cole/riot/models"
	"github.com/google/uuid"
)

// eventBus manages event distribution to registered listeners (private)
type eventBus struct {
	listeners []models.EventListener
	mutex     sync.RWMutex
	pendingWg sync.WaitGroup // Tracks events being processed
}

// newEventBus creates a new eventBus instance (private)
func newEventBus() *eventBus {
	return &eventBus{
		listeners: make([]models.EventListener, 0),
	}
}

// addListener registers a new listener
func (eb *eventBus) addListener(listener models.EventListener) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.listeners = append(eb.listeners, listener)
}

// Emit sends an event to all registered listeners
func (eb *eventBus) Emit(eventType models.EventType, data map[string]any) {
	eb.mutex.RLock()
	listeners := make([]models.EventListener, len(eb.listeners))
	copy(listeners, eb.listeners)
	eb.mutex.RUnlock()

	if len(listeners) == 0 {
		return
	}

	event := models.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Notify all listeners asynchronously to avoid blocking execution
	for _, listener := range listeners {
		eb.pendingWg.Add(1)
		go func(l models.EventListener) {
			defer eb.pendingWg.Done()
			l.OnEvent(event)
		}(listener)
	}
}

// Wait waits for all pending events to be processed
func (eb *eventBus) Wait() {
	eb.pendingWg.Wait()
}

func (eb *eventBus) emitJobStarted(job, runID string) {
	eb.Emit(models.EventJobStarted, map[string]any{
		"job":    job,
		"run_id": runID,
	})
}

func (eb *eventBus) emitJobCompleted(result models.JobResult) {
	eb.Emit(models.EventJobCompleted, map[string]any{
		"job":      result.Job,
		"run_id":   result.RunID,
		"duration": result.Duration,
	})
}

func (eb *eventBus) emitJobFailed(result models.JobResult) {
	eb.Emit(models.EventJobFailed, map[string]any{
		"job":      result.Job,
		"run_id":   result.RunID,
		"duration": result.Duration,
		"error":    result.Err.Error(),
	})
}

func (eb *eventBus) emitStepStarted(step string) {
	eb.Emit(models.EventStepStarted, map[string]any{
		"step": step,
	})
}

func (eb *eventBus) emitStepCompleted(result models.StepResult) {
	eb.Emit(models.EventStepCompleted, map[string]any{
		"step":     result.Step,
		"read":     result.Read,
		"written":  result.Written,
		"skipped":  result.Skipped,
		"filtered": result.Filtered,
		"stopped":  result.Stopped,
		"duration": result.Duration,
	})
}

func (eb *eventBus) emitStepFailed(result models.StepResult) {
	eb.Emit(models.EventStepFailed, map[string]any{
		"step":     result.Step,
		"read":     result.Read,
		"written":  result.Written,
		"skipped":  result.Skipped,
		"duration": result.Duration,
		"error":    result.Err.Error(),
	})
}

func (eb *eventBus) emitChunkWritten(step string, size int, total int64) {
	eb.Emit(models.EventChunkWritten, map[string]any{
		"step":    step,
		"size":    size,
		"written": total,
	})
}

func (eb *eventBus) emitChunkRetried(step string, attempt int64, err error) {
	eb.Emit(models.EventChunkRetried, map[string]any{
		"step":    step,
		"attempt": attempt,
		"error":   err.Error(),
	})
}

func (eb *eventBus) emitRecordSkipped(step string, err error) {
	eb.Emit(models.EventRecordSkipped, map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}

func (eb *eventBus) emitLiveState(step string, state LiveState) {
	eb.Emit(models.EventLiveState, map[string]any{
		"step":  step,
		"state": string(state),
	})
}
