package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JobConfig represents the complete job configuration from YAML
type JobConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Variables   map[string]any `yaml:"variables,omitempty"` // Reusable values, referenced as $var:name
	Options     StepOptions    `yaml:"options,omitempty"`   // Defaults for every step
	Steps       []StepConfig   `yaml:"steps"`
}

// StepConfig represents one step: a source, an optional processor and one or more sinks
type StepConfig struct {
	Name      string            `yaml:"name"`
	Source    ComponentConfig   `yaml:"source"`
	Processor *ComponentConfig  `yaml:"processor,omitempty"`
	Sinks     []ComponentConfig `yaml:"sinks"`
	Options   StepOptions       `yaml:"options,omitempty"` // Overrides the job defaults
}

// ComponentConfig selects a registered source, sink or processor type
type ComponentConfig struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// StepOptions holds optional step settings. Unset fields fall back to the next level.
type StepOptions struct {
	ChunkSize    *int           `yaml:"chunk_size,omitempty"`
	Threads      *int           `yaml:"threads,omitempty"`
	SkipLimit    *int           `yaml:"skip_limit,omitempty"`
	RetryLimit   *int           `yaml:"retry_limit,omitempty"`
	RetryBackoff *time.Duration `yaml:"retry_backoff,omitempty"`
	Sleep        *time.Duration `yaml:"sleep,omitempty"`
	DryRun       *bool          `yaml:"dry_run,omitempty"`
	PollInterval *time.Duration `yaml:"poll_interval,omitempty"`
	IdleTimeout  *time.Duration `yaml:"idle_timeout,omitempty"`
	DrainTimeout *time.Duration `yaml:"drain_timeout,omitempty"`
}

// Merge returns o with every field set in override replaced
func (o StepOptions) Merge(override StepOptions) StepOptions {
	merged := o
	if override.ChunkSize != nil {
		merged.ChunkSize = override.ChunkSize
	}
	if override.Threads != nil {
		merged.Threads = override.Threads
	}
	if override.SkipLimit != nil {
		merged.SkipLimit = override.SkipLimit
	}
	if override.RetryLimit != nil {
		merged.RetryLimit = override.RetryLimit
	}
	if override.RetryBackoff != nil {
		merged.RetryBackoff = override.RetryBackoff
	}
	if override.Sleep != nil {
		merged.Sleep = override.Sleep
	}
	if override.DryRun != nil {
		merged.DryRun = override.DryRun
	}
	if override.PollInterval != nil {
		merged.PollInterval = override.PollInterval
	}
	if override.IdleTimeout != nil {
		merged.IdleTimeout = override.IdleTimeout
	}
	if override.DrainTimeout != nil {
		merged.DrainTimeout = override.DrainTimeout
	}
	return merged
}

// ParseJobConfig decodes and validates a YAML job
func ParseJobConfig(data []byte) (*JobConfig, error) {
	var cfg JobConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse job config: %w", err)
	}
	if err := ValidateJobConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJobConfig reads a YAML job file
func LoadJobConfig(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job config: %w", err)
	}
	return ParseJobConfig(data)
}
