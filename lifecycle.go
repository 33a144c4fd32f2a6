package riot

import (
	"context"
	"sync"

	"github.com/corey-cole/riot/models"
	"github.com/go-logr/logr"
)

type component interface {
	Open(ctx context.Context) error
	Close() error
}

type openedComponent struct {
	name  string
	close func() error
}

// lifecycle opens sources and sinks and closes every opened one exactly once,
// in reverse order of opening.
type lifecycle struct {
	log logr.Logger

	mu     sync.Mutex
	opened []openedComponent
	closed bool
}

func newLifecycle(log logr.Logger) *lifecycle {
	return &lifecycle{log: log}
}

// open opens c and registers it for closing. A failure is an InitializationError
// and c is not registered.
func (l *lifecycle) open(ctx context.Context, name string, c component) error {
	if err := c.Open(ctx); err != nil {
		return models.ErrInitialization(name, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, openedComponent{name: name, close: c.Close})
	l.log.V(1).Info("opened", "component", name)
	return nil
}

// closeAll closes in reverse order. Close failures are only logged.
func (l *lifecycle) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true

	for i := len(l.opened) - 1; i >= 0; i-- {
		c := l.opened[i]
		if err := c.close(); err != nil {
			l.log.Info("unable to close component", "component", c.name, "warning", err.Error())
			continue
		}
		l.log.V(1).Info("closed", "component", c.name)
	}
}
