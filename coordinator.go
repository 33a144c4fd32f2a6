package riot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corey-cole/riot/models"
	"golang.org/x/sync/errgroup"
)

// errHalted is returned by serialReader once the step has failed
var errHalted = errors.New("source reads halted")

// serialReader gives lanes exclusive access to the source, one Next call at a time
type serialReader struct {
	mu     sync.Mutex
	source models.Source
	stop   atomic.Bool
}

func (r *serialReader) next(ctx context.Context) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop.Load() {
		return nil, errHalted
	}
	return r.source.Next(ctx)
}

func (r *serialReader) halt() { r.stop.Store(true) }

func (r *serialReader) halted() bool { return r.stop.Load() }

// execute runs the step: open, run the lanes, close, report
func (s *Step) execute(ctx context.Context, env runEnv) models.StepResult {
	start := time.Now()
	run := s.newRun(env)
	run.log.Info("starting step", "chunkSize", run.opts.ChunkSize, "workers", run.opts.Workers, "dryRun", run.opts.DryRun)
	env.bus.emitStepStarted(s.def.name)
	run.metrics.running.Set(1)
	defer run.metrics.running.Set(0)

	resources := newLifecycle(run.log)
	err := run.start(ctx, resources)
	resources.closeAll()

	result := run.result(time.Since(start), err, ctx.Err() != nil)
	if result.Err != nil {
		run.log.Error(result.Err.Cause, "step failed", "read", result.Read, "written", result.Written, "skipped", result.Skipped)
		env.bus.emitStepFailed(result)
		return result
	}
	run.log.Info("step completed", "read", result.Read, "written", result.Written, "skipped", result.Skipped,
		"filtered", result.Filtered, "stopped", result.Stopped, "duration", result.Duration)
	env.bus.emitStepCompleted(result)
	return result
}

func (r *stepRun) start(ctx context.Context, resources *lifecycle) error {
	if err := resources.open(ctx, "source", r.step.source); err != nil {
		return r.fail(err, nil)
	}
	caps := r.step.source.Capabilities()
	if caps.Live {
		r.live = newLiveController(r.opts.Live, func(from, to LiveState) {
			r.log.V(1).Info("live state changed", "from", from, "to", to)
			r.bus.emitLiveState(r.step.def.name, to)
		})
	}
	if caps.EstimatedSize >= 0 {
		r.log.V(1).Info("source size", "estimated", caps.EstimatedSize)
	}

	sinks, err := r.openSinks(ctx, resources)
	if err != nil {
		return r.fail(err, nil)
	}
	return r.runLanes(ctx, sinks)
}

// openSinks returns one sink per lane. A concurrency safe sink is shared by all lanes.
func (r *stepRun) openSinks(ctx context.Context, resources *lifecycle) ([]models.Sink, error) {
	factory := decorate(r.step.sinks, r.opts, ctx.Done())
	lanes := make([]models.Sink, 0, r.opts.Workers)
	for i := 0; i < r.opts.Workers; i++ {
		if i > 0 && lanes[0].Capabilities().ConcurrencySafe {
			lanes = append(lanes, lanes[0])
			continue
		}
		sink, err := factory()
		if err != nil {
			return nil, models.ErrInitialization(fmt.Sprintf("sink %d", i), err)
		}
		if err := resources.open(ctx, fmt.Sprintf("sink %d", i), sink); err != nil {
			return nil, err
		}
		lanes = append(lanes, sink)
	}
	return lanes, nil
}

// runLanes runs one chunk loop per sink and returns the first lane failure
func (r *stepRun) runLanes(ctx context.Context, sinks []models.Sink) error {
	drain, stopDrain := drainContext(ctx, r.opts.DrainTimeout)
	defer stopDrain()

	g, gctx := errgroup.WithContext(ctx)
	for lane, sink := range sinks {
		g.Go(func() error {
			return r.runLane(gctx, drain, lane, sink)
		})
	}
	return g.Wait()
}

// drainContext outlives ctx so the chunk in flight can finish after a stop.
// It is cancelled timeout after ctx is done, or never when timeout is 0.
func drainContext(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	drain, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if timeout <= 0 {
		return drain, cancel
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		timer = time.AfterFunc(timeout, cancel)
	})
	return drain, func() {
		stop()
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		cancel()
	}
}
