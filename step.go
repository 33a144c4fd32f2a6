package riot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corey-cole/riot/models"
	"github.com/go-logr/logr"
)

const (
	DefaultChunkSize    = 50
	DefaultWorkers      = 1
	DefaultPollInterval = 100 * time.Millisecond
	DefaultDrainTimeout = 30 * time.Second
)

// LiveOptions apply only when the source declares itself live
type LiveOptions struct {
	PollInterval time.Duration // wait between polls when no data is available
	IdleTimeout  time.Duration // 0 tails until stopped
}

// StepOptions is the step configuration surface
type StepOptions struct {
	ChunkSize    int
	Workers      int
	SkipLimit    int
	RetryLimit   int
	RetryBackoff time.Duration // wait between attempts of a failed chunk
	Sleep        time.Duration // wait after each successful chunk write
	DryRun       bool
	Live         LiveOptions
	DrainTimeout time.Duration // how long in-flight I/O may continue after a stop, 0 waits indefinitely
}

// DefaultStepOptions returns the options used when nothing is configured
func DefaultStepOptions() StepOptions {
	return StepOptions{
		ChunkSize:    DefaultChunkSize,
		Workers:      DefaultWorkers,
		Live:         LiveOptions{PollInterval: DefaultPollInterval},
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Validate checks option bounds
func (o StepOptions) Validate() error {
	var errs []error
	if o.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk size must be at least 1, got %d", o.ChunkSize))
	}
	if o.Workers < 1 {
		errs = append(errs, fmt.Errorf("worker count must be at least 1, got %d", o.Workers))
	}
	if o.SkipLimit < 0 {
		errs = append(errs, fmt.Errorf("skip limit must not be negative, got %d", o.SkipLimit))
	}
	if o.RetryLimit < 0 {
		errs = append(errs, fmt.Errorf("retry limit must not be negative, got %d", o.RetryLimit))
	}
	if o.RetryBackoff < 0 || o.Sleep < 0 || o.DrainTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if o.Live.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", o.Live.PollInterval))
	}
	if o.Live.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle timeout must not be negative, got %s", o.Live.IdleTimeout))
	}
	return errors.Join(errs...)
}

// StepDefinition is the immutable configuration of a step, built once before a run
type StepDefinition struct {
	name string
	opts StepOptions
}

// NewStepDefinition validates the options and freezes them
func NewStepDefinition(name string, opts StepOptions) (StepDefinition, error) {
	if name == "" {
		return StepDefinition{}, errors.New("step name cannot be empty")
	}
	if err := opts.Validate(); err != nil {
		return StepDefinition{}, fmt.Errorf("step %s: %w", name, err)
	}
	return StepDefinition{name: name, opts: opts}, nil
}

func (d StepDefinition) Name() string { return d.name }

// Options returns a copy of the step options
func (d StepDefinition) Options() StepOptions { return d.opts }

// Step binds a definition to its source, sink and optional transformer
type Step struct {
	def         StepDefinition
	source      models.Source
	sinks       models.SinkFactory
	transformer models.Transformer
}

// NewStep creates a step. The sink factory is called once per lane unless the
// sink it returns is concurrency safe. transformer may be nil.
func NewStep(def StepDefinition, source models.Source, sinks models.SinkFactory, transformer models.Transformer) (*Step, error) {
	if def.name == "" {
		return nil, errors.New("step definition is not initialized")
	}
	if source == nil {
		return nil, fmt.Errorf("step %s: source cannot be nil", def.name)
	}
	if sinks == nil {
		return nil, fmt.Errorf("step %s: sink factory cannot be nil", def.name)
	}
	return &Step{def: def, source: source, sinks: sinks, transformer: transformer}, nil
}

func (s *Step) Name() string { return s.def.name }

func (s *Step) Definition() StepDefinition { return s.def }

// Run executes the step on its own, outside of a job
func (s *Step) Run(ctx context.Context, log logr.Logger) models.StepResult {
	return s.execute(ctx, runEnv{log: log, bus: newEventBus(), job: s.def.name})
}
