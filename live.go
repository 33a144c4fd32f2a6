package riot

import (
	"context"
	"sync"
	"time"
)

// LiveState is the state of a live-tailing step
type LiveState string

const (
	LivePolling    LiveState = "Polling"
	LiveDraining   LiveState = "Draining"
	LiveIdle       LiveState = "Idle"
	LiveTerminated LiveState = "Terminated"
)

// liveController keeps a live step alive until no record arrived for the idle timeout.
// It is shared by all lanes.
type liveController struct {
	pollInterval time.Duration
	idleTimeout  time.Duration
	onTransition func(from, to LiveState)

	mu         sync.Mutex
	state      LiveState
	lastRecord time.Time
}

func newLiveController(opts LiveOptions, onTransition func(from, to LiveState)) *liveController {
	return &liveController{
		pollInterval: opts.PollInterval,
		idleTimeout:  opts.IdleTimeout,
		onTransition: onTransition,
		state:        LivePolling,
		lastRecord:   time.Now(),
	}
}

// observe records the arrival of a record
func (l *liveController) observe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRecord = time.Now()
	l.setState(LiveDraining)
}

// await is called when the source has nothing available. It waits until the
// next poll and returns true, or returns false once the step must terminate.
func (l *liveController) await(ctx context.Context) bool {
	l.mu.Lock()
	if l.state == LiveTerminated {
		l.mu.Unlock()
		return false
	}
	if ctx.Err() != nil {
		l.setState(LiveTerminated)
		l.mu.Unlock()
		return false
	}

	idle := time.Since(l.lastRecord)
	if l.idleTimeout > 0 && idle >= l.idleTimeout {
		l.setState(LiveIdle)
		l.setState(LiveTerminated)
		l.mu.Unlock()
		return false
	}

	// Never sleep past the idle deadline
	wait := l.pollInterval
	if l.idleTimeout > 0 && l.idleTimeout-idle < wait {
		wait = l.idleTimeout - idle
	}
	l.setState(LivePolling)
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.mu.Lock()
		l.setState(LiveTerminated)
		l.mu.Unlock()
		return false
	case <-timer.C:
		return true
	}
}

// State returns the current state
func (l *liveController) State() LiveState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// setState must be called with mu held
func (l *liveController) setState(to LiveState) {
	if l.state == to || l.state == LiveTerminated {
		return
	}
	from := l.state
	l.state = to
	if l.onTransition != nil {
		l.onTransition(from, to)
	}
}
