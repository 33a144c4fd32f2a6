package riot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corey-cole/riot/models"
	"github.com/corey-cole/riot/sinks"
)

// ThrottledSink sleeps after each successful write before returning control to the lane.
// The sleep ends early when stop is closed; a nil stop never interrupts it.
type ThrottledSink struct {
	models.Sink
	delay time.Duration
	stop  <-chan struct{}
}

// NewThrottledSink wraps sink with a fixed delay after every successful chunk
func NewThrottledSink(sink models.Sink, delay time.Duration, stop <-chan struct{}) *ThrottledSink {
	return &ThrottledSink{Sink: sink, delay: delay, stop: stop}
}

func (s *ThrottledSink) Write(ctx context.Context, chunk models.Chunk) error {
	if err := s.Sink.Write(ctx, chunk); err != nil {
		return err
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.stop:
	case <-timer.C:
	}
	return nil
}

// FanOutSink writes every chunk to several sinks in declared order.
// The first failure fails the chunk and later sinks are not invoked for that attempt.
type FanOutSink struct {
	sinks []models.Sink
}

// NewFanOutSink composes sinks. At least one sink is required.
func NewFanOutSink(targets ...models.Sink) (*FanOutSink, error) {
	if len(targets) == 0 {
		return nil, errors.New("fan-out sink needs at least one sink")
	}
	return &FanOutSink{sinks: targets}, nil
}

// Open opens sinks in order; on failure the already opened ones are closed
func (f *FanOutSink) Open(ctx context.Context) error {
	for i, sink := range f.sinks {
		if err := sink.Open(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = f.sinks[j].Close()
			}
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

func (f *FanOutSink) Write(ctx context.Context, chunk models.Chunk) error {
	for i, sink := range f.sinks {
		if err := sink.Write(ctx, chunk); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Close closes sinks in reverse order and reports every failure
func (f *FanOutSink) Close() error {
	var errs []error
	for i := len(f.sinks) - 1; i >= 0; i-- {
		if err := f.sinks[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Capabilities is concurrency safe only if every sink is. Merge is owned by each sink.
func (f *FanOutSink) Capabilities() models.SinkCapabilities {
	caps := models.SinkCapabilities{ConcurrencySafe: true}
	for _, sink := range f.sinks {
		if !sink.Capabilities().ConcurrencySafe {
			caps.ConcurrencySafe = false
		}
	}
	return caps
}

// FanOut composes sink factories into a factory of fan-out sinks
func FanOut(factories ...models.SinkFactory) models.SinkFactory {
	if len(factories) == 1 {
		return factories[0]
	}
	return func() (models.Sink, error) {
		targets := make([]models.Sink, 0, len(factories))
		for _, factory := range factories {
			sink, err := factory()
			if err != nil {
				return nil, err
			}
			targets = append(targets, sink)
		}
		return NewFanOutSink(targets...)
	}
}

// decorate applies dry-run and throttling to a lane's sink. In dry-run the real
// factory is never called. stop cuts the throttle sleep short.
func decorate(factory models.SinkFactory, opts StepOptions, stop <-chan struct{}) models.SinkFactory {
	return func() (models.Sink, error) {
		var sink models.Sink
		if opts.DryRun {
			sink = sinks.NewNoop()
		} else {
			s, err := factory()
			if err != nil {
				return nil, err
			}
			sink = s
		}
		if opts.Sleep > 0 {
			sink = NewThrottledSink(sink, opts.Sleep, stop)
		}
		return sink, nil
	}
}
