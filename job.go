package riot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corey-cole/riot/models"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

const stopTimeout = 30 * time.Second

// Job runs its steps one after the other and stops at the first failed step
type Job struct {
	name  string
	steps []*Step
	mutex sync.RWMutex
	log   logr.Logger

	// Lifecycle management
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{} // Signals when the job has terminated
	result  models.JobResult

	// Event handling (private)
	eventBus *eventBus
}

// NewJob creates a new job
func NewJob(name string) *Job {
	done := make(chan struct{})
	close(done)
	return &Job{
		name:     name,
		log:      logr.Discard(),
		done:     done,
		eventBus: newEventBus(),
	}
}

func (j *Job) Name() string { return j.name }

// SetLogger sets the logger used by the job and its steps
func (j *Job) SetLogger(log logr.Logger) {
	j.log = log
}

// AddListener adds a listener to receive events from the job
func (j *Job) AddListener(listener models.EventListener) {
	j.eventBus.addListener(listener)
}

// AddStep appends a step. Step names must be unique within a job.
func (j *Job) AddStep(step *Step) error {
	if step == nil {
		return errors.New("step cannot be nil")
	}
	j.mutex.Lock()
	defer j.mutex.Unlock()
	for _, existing := range j.steps {
		if existing.Name() == step.Name() {
			return fmt.Errorf("duplicate step name '%s'", step.Name())
		}
	}
	j.steps = append(j.steps, step)
	return nil
}

// Steps returns the steps in execution order
func (j *Job) Steps() []*Step {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	steps := make([]*Step, len(j.steps))
	copy(steps, j.steps)
	return steps
}

// Validate checks the job can run
func (j *Job) Validate() error {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	if j.name == "" {
		return errors.New("job name cannot be empty")
	}
	if len(j.steps) == 0 {
		return fmt.Errorf("job '%s' has no steps", j.name)
	}
	return nil
}

// Start runs the job in background (non blocking)
func (j *Job) Start(parentCtx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return errors.New("job already running")
	}

	if err := j.Validate(); err != nil {
		j.running.Store(false)
		return fmt.Errorf("job validation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer func() {
			cancel()
			// Wait for listeners before reporting completion
			j.eventBus.Wait()
			j.running.Store(false)
			close(j.done)
		}()

		j.result = j.execute(ctx)
	}()

	return nil
}

// Stop requests a graceful stop: chunks in flight complete, nothing new starts
func (j *Job) Stop() error {
	if !j.running.Load() {
		return errors.New("job not running")
	}

	if j.cancel != nil {
		j.cancel()
	}

	select {
	case <-j.done:
		return nil
	case <-time.After(stopTimeout):
		return errors.New("job stop timeout")
	}
}

// Wait waits for the job to terminate and returns its result
func (j *Job) Wait() models.JobResult {
	<-j.done
	return j.result
}

// IsRunning reports whether the job is currently running
func (j *Job) IsRunning() bool {
	return j.running.Load()
}

// Execute runs the job and blocks until it terminates. The returned error is the
// failure of the first failed step.
func (j *Job) Execute(ctx context.Context) (models.JobResult, error) {
	if err := j.Start(ctx); err != nil {
		return models.JobResult{}, err
	}
	result := j.Wait()
	return result, result.Err
}

func (j *Job) execute(ctx context.Context) models.JobResult {
	start := time.Now()
	result := models.JobResult{
		RunID:  uuid.NewString(),
		Job:    j.name,
		Status: models.StatusSucceeded,
	}
	log := j.log.WithValues("job", j.name, "run", result.RunID)
	env := runEnv{log: log, bus: j.eventBus, job: j.name}

	log.Info("starting job")
	j.eventBus.emitJobStarted(j.name, result.RunID)

	for _, step := range j.Steps() {
		if ctx.Err() != nil {
			log.Info("job stopped before step", "step", step.Name())
			break
		}
		stepResult := step.execute(ctx, env)
		result.Steps = append(result.Steps, stepResult)
		if !stepResult.Succeeded() {
			result.Status = models.StatusFailed
			result.Err = stepResult.Err
			break
		}
	}

	result.Duration = time.Since(start)
	if result.Err != nil {
		log.Error(result.Err, "job failed", "duration", result.Duration)
		j.eventBus.emitJobFailed(result)
		return result
	}
	log.Info("job completed", "duration", result.Duration)
	j.eventBus.emitJobCompleted(result)
	return result
}
