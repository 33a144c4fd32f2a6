package riot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/corey-cole/riot/models"
	"github.com/go-logr/logr"
)

type runEnv struct {
	log logr.Logger
	bus *eventBus
	job string
}

// stepRun is the execution state of one step run. Counters are shared by all lanes.
type stepRun struct {
	step    *Step
	opts    StepOptions
	log     logr.Logger
	bus     *eventBus
	metrics stepMetrics

	reader *serialReader
	live   *liveController
	policy *faultPolicy

	read     atomic.Int64
	written  atomic.Int64
	filtered atomic.Int64
	retries  atomic.Int64
	chunks   atomic.Int64
}

func (s *Step) newRun(env runEnv) *stepRun {
	opts := s.def.opts
	return &stepRun{
		step:    s,
		opts:    opts,
		log:     env.log.WithValues("step", s.def.name),
		bus:     env.bus,
		metrics: newStepMetrics(env.job, s.def.name),
		reader:  &serialReader{source: s.source},
		policy:  newFaultPolicy(opts),
	}
}

// runLane is the chunk loop of one worker lane. Each lane holds at most one chunk,
// so the lane count bounds the chunks in flight. ctx carries the stop signal and is
// only observed between chunks; drain is used for the I/O of the chunk in flight.
func (r *stepRun) runLane(ctx, drain context.Context, lane int, sink models.Sink) error {
	log := r.log.WithValues("lane", lane)
	for {
		if ctx.Err() != nil {
			log.V(1).Info("lane stopping")
			return nil
		}
		chunk, done, err := r.readChunk(ctx, drain)
		if err == nil && len(chunk) > 0 {
			if r.reader.halted() {
				log.V(1).Info("discarding chunk after step failure", "size", len(chunk))
				return nil
			}
			err = r.writeChunk(drain, sink, chunk)
		}

		if err != nil {
			return err
		}
		if done {
			log.V(1).Info("lane finished")
			return nil
		}
	}
}

// readChunk assembles up to ChunkSize transformed records. It returns early at the
// end of the source or, for live sources, when nothing more is available right now.
// done reports that the lane should not read again. Once the step has failed the
// partial chunk is dropped.
func (r *stepRun) readChunk(ctx, drain context.Context) (models.Chunk, bool, error) {
	chunk := make(models.Chunk, 0, r.opts.ChunkSize)
	for len(chunk) < r.opts.ChunkSize {
		record, err := r.reader.next(drain)
		switch {
		case err == nil:
			r.read.Add(1)
			r.metrics.read.Inc()
			if r.live != nil {
				r.live.observe()
			}
			out, err := r.transform(drain, record)
			if err != nil {
				if err := r.tolerate(err, record); err != nil {
					return nil, true, err
				}
				continue
			}
			if out == nil {
				r.filtered.Add(1)
				continue
			}
			chunk = append(chunk, out)

		case errors.Is(err, errHalted):
			return nil, true, nil

		case errors.Is(err, models.ErrEndOfStream):
			return chunk, true, nil

		case errors.Is(err, models.ErrNoData) && r.live != nil:
			if len(chunk) > 0 {
				return chunk, false, nil
			}
			if !r.live.await(ctx) {
				return chunk, true, nil
			}

		default:
			if err := r.tolerate(err, nil); err != nil {
				return nil, true, err
			}
		}
	}
	return chunk, false, nil
}

func (r *stepRun) transform(ctx context.Context, record *models.Record) (*models.Record, error) {
	if r.step.transformer == nil {
		return record, nil
	}
	return r.step.transformer.Transform(ctx, record)
}

// tolerate absorbs parse errors up to the skip limit. Anything else aborts the step.
func (r *stepRun) tolerate(err error, record *models.Record) error {
	if models.Classify(err) != models.FailureParse {
		return r.fail(err, record)
	}
	if !r.policy.trySkip() {
		return r.fail(&models.SkipLimitExceededError{Limit: r.opts.SkipLimit, Cause: err}, record)
	}

	r.metrics.skipped.Inc()
	r.log.V(1).Info("skipping record", "reason", err.Error(), "skipped", r.policy.skipCount())
	r.bus.emitRecordSkipped(r.step.def.name, err)
	return nil
}

func (r *stepRun) writeChunk(ctx context.Context, sink models.Sink, chunk models.Chunk) error {
	start := time.Now()
	err := r.policy.write(ctx, sink, chunk, func(err error, wait time.Duration) {
		attempt := r.retries.Add(1)
		r.metrics.retries.Inc()
		r.log.Info("retrying chunk", "size", len(chunk), "wait", wait, "reason", err.Error())
		r.bus.emitChunkRetried(r.step.def.name, attempt, err)
	})
	if err != nil {
		return r.fail(err, chunk[0])
	}

	r.metrics.writeDuration.Observe(time.Since(start).Seconds())
	r.metrics.written.Add(float64(len(chunk)))
	written := r.written.Add(int64(len(chunk)))
	r.chunks.Add(1)
	r.bus.emitChunkWritten(r.step.def.name, len(chunk), written)
	return nil
}

// fail converts err into the step-level failure and stops all reads from the source
func (r *stepRun) fail(err error, record *models.Record) *models.StepError {
	r.reader.halt()
	var stepErr *models.StepError
	if errors.As(err, &stepErr) {
		return stepErr
	}
	return &models.StepError{
		Step:   r.step.def.name,
		Kind:   models.Classify(err),
		Record: record,
		Cause:  err,
	}
}

func (r *stepRun) result(duration time.Duration, err error, stopped bool) models.StepResult {
	result := models.StepResult{
		Step:     r.step.def.name,
		Status:   models.StatusSucceeded,
		Read:     r.read.Load(),
		Written:  r.written.Load(),
		Skipped:  r.policy.skipCount(),
		Filtered: r.filtered.Load(),
		Retries:  r.retries.Load(),
		Chunks:   r.chunks.Load(),
		Duration: duration,
	}
	if err != nil {
		result.Status = models.StatusFailed
		result.Err = r.fail(err, nil)
		return result
	}
	result.Stopped = stopped
	return result
}
