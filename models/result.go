package models

import "time"

// Status is the outcome of a step or job
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StepResult is what a step run reports to the caller
type StepResult struct {
	Step     string
	Status   Status
	Read     int64 // records pulled from the source
	Written  int64 // records handed to the sink successfully
	Skipped  int64 // records skipped on parse errors
	Filtered int64 // records dropped by the transformer
	Retries  int64 // chunk write re-attempts
	Chunks   int64 // chunks written
	Stopped  bool  // an external stop ended the run early
	Duration time.Duration
	Err      *StepError
}

// Succeeded reports whether the step completed without an unrecoverable failure
func (r StepResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// JobResult aggregates the step results of one job run
type JobResult struct {
	RunID    string
	Job      string
	Status   Status
	Steps    []StepResult
	Duration time.Duration
	Err      error
}

// Succeeded reports whether every step succeeded
func (r JobResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}
