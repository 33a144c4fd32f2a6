package riot

import (
	"fmt"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"

	// Register the built-in connectors
	_ "github.com/corey-cole/riot/processors"
	_ "github.com/corey-cole/riot/sinks"
	_ "github.com/corey-cole/riot/sources"
)

// BuildFromConfig builds a job from a configuration
func BuildFromConfig(cfg *config.JobConfig) (*Job, error) {
	return BuildWithOverrides(cfg, config.StepOptions{})
}

// BuildWithOverrides builds a job from a configuration. Options are layered as
// defaults, then job options, then step options, then overrides.
func BuildWithOverrides(cfg *config.JobConfig, overrides config.StepOptions) (*Job, error) {
	if err := config.ValidateJobConfig(cfg); err != nil {
		return nil, err
	}
	if err := config.ValidateStepOptions(overrides); err != nil {
		return nil, err
	}

	job := NewJob(cfg.Name)
	for _, stepConfig := range cfg.Steps {
		opts := cfg.Options.Merge(stepConfig.Options).Merge(overrides)
		step, err := buildStep(stepConfig, ApplyOptions(DefaultStepOptions(), opts), cfg.Variables)
		if err != nil {
			return nil, fmt.Errorf("step '%s': %w", stepConfig.Name, err)
		}
		if err := job.AddStep(step); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func buildStep(cfg config.StepConfig, opts StepOptions, vars map[string]any) (*Step, error) {
	def, err := NewStepDefinition(cfg.Name, opts)
	if err != nil {
		return nil, err
	}

	source, err := builder.CreateSource(cfg.Source, vars)
	if err != nil {
		return nil, err
	}

	var transformer models.Transformer
	if cfg.Processor != nil {
		transformer, err = builder.CreateProcessor(*cfg.Processor, vars)
		if err != nil {
			return nil, err
		}
	}

	factories := make([]models.SinkFactory, 0, len(cfg.Sinks))
	for _, sinkConfig := range cfg.Sinks {
		factory, err := builder.CreateSinkFactory(sinkConfig, vars)
		if err != nil {
			return nil, err
		}
		factories = append(factories, factory)
	}

	return NewStep(def, source, FanOut(factories...), transformer)
}

// ApplyOptions returns base with every option set in o replaced
func ApplyOptions(base StepOptions, o config.StepOptions) StepOptions {
	if o.ChunkSize != nil {
		base.ChunkSize = *o.ChunkSize
	}
	if o.Threads != nil {
		base.Workers = *o.Threads
	}
	if o.SkipLimit != nil {
		base.SkipLimit = *o.SkipLimit
	}
	if o.RetryLimit != nil {
		base.RetryLimit = *o.RetryLimit
	}
	if o.RetryBackoff != nil {
		base.RetryBackoff = *o.RetryBackoff
	}
	if o.Sleep != nil {
		base.Sleep = *o.Sleep
	}
	if o.DryRun != nil {
		base.DryRun = *o.DryRun
	}
	if o.PollInterval != nil {
		base.Live.PollInterval = *o.PollInterval
	}
	if o.IdleTimeout != nil {
		base.Live.IdleTimeout = *o.IdleTimeout
	}
	if o.DrainTimeout != nil {
		base.DrainTimeout = *o.DrainTimeout
	}
	return base
}
