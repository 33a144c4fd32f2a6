package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidateJobConfig checks the structure of a job before anything is built
func ValidateJobConfig(cfg *JobConfig) error {
	if cfg.Name == "" {
		return errors.New("job name is required")
	}
	if len(cfg.Steps) == 0 {
		return fmt.Errorf("job '%s' has no steps", cfg.Name)
	}
	if err := ValidateStepOptions(cfg.Options); err != nil {
		return fmt.Errorf("invalid job options: %w", err)
	}

	names := make(map[string]bool, len(cfg.Steps))
	for i, step := range cfg.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("duplicate step name '%s'", step.Name)
		}
		names[step.Name] = true

		if err := validateStep(step); err != nil {
			return fmt.Errorf("invalid step '%s': %w", step.Name, err)
		}
	}
	return nil
}

func validateStep(step StepConfig) error {
	if step.Source.Type == "" {
		return errors.New("source type is required")
	}
	if step.Processor != nil && step.Processor.Type == "" {
		return errors.New("processor type is required")
	}
	if len(step.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}
	for i, sink := range step.Sinks {
		if sink.Type == "" {
			return fmt.Errorf("sink %d: type is required", i)
		}
	}
	return ValidateStepOptions(step.Options)
}

// ValidateStepOptions checks the bounds of the options that are set
func ValidateStepOptions(o StepOptions) error {
	var errs []error
	if o.ChunkSize != nil && *o.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk_size must be at least 1, got %d", *o.ChunkSize))
	}
	if o.Threads != nil && *o.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", *o.Threads))
	}
	if o.SkipLimit != nil && *o.SkipLimit < 0 {
		errs = append(errs, fmt.Errorf("skip_limit must not be negative, got %d", *o.SkipLimit))
	}
	if o.RetryLimit != nil && *o.RetryLimit < 0 {
		errs = append(errs, fmt.Errorf("retry_limit must not be negative, got %d", *o.RetryLimit))
	}
	for name, d := range map[string]*time.Duration{
		"retry_backoff": o.RetryBackoff,
		"sleep":         o.Sleep,
		"idle_timeout":  o.IdleTimeout,
		"drain_timeout": o.DrainTimeout,
	} {
		if d != nil && *d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, *d))
		}
	}
	if o.PollInterval != nil && *o.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", *o.PollInterval))
	}
	return errors.Join(errs...)
}
