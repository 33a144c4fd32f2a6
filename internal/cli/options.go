package cli

import (
	"github.com/corey-cole/riot/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// addStepFlags registers the step option flags. They override job file options
// and can also be set from RIOT_* environment variables.
func addStepFlags(flags *pflag.FlagSet) {
	flags.Int("chunk-size", 50, "number of records written per chunk")
	flags.Int("threads", 1, "number of concurrent worker lanes")
	flags.Int("skip-limit", 0, "number of unparseable records tolerated before failing")
	flags.Int("retry-limit", 0, "number of extra attempts for a chunk failing with a transient error")
	flags.Duration("retry-backoff", 0, "wait between chunk retry attempts")
	flags.Duration("sleep", 0, "wait after each chunk write")
	flags.Bool("dry-run", false, "read and transform but do not write")
	flags.Duration("poll-interval", 0, "live sources: wait between polls when no data is available")
	flags.Duration("idle-timeout", 0, "live sources: stop after this long without data, 0 tails until interrupted")
	flags.Duration("drain-timeout", 0, "how long the chunk in flight may finish after an interrupt")
}

// stepOverrides returns the step options explicitly set by flag or environment
func stepOverrides(v *viper.Viper) config.StepOptions {
	var o config.StepOptions
	if v.IsSet("chunk-size") {
		o.ChunkSize = ptr(v.GetInt("chunk-size"))
	}
	if v.IsSet("threads") {
		o.Threads = ptr(v.GetInt("threads"))
	}
	if v.IsSet("skip-limit") {
		o.SkipLimit = ptr(v.GetInt("skip-limit"))
	}
	if v.IsSet("retry-limit") {
		o.RetryLimit = ptr(v.GetInt("retry-limit"))
	}
	if v.IsSet("retry-backoff") {
		o.RetryBackoff = ptr(v.GetDuration("retry-backoff"))
	}
	if v.IsSet("sleep") {
		o.Sleep = ptr(v.GetDuration("sleep"))
	}
	if v.IsSet("dry-run") {
		o.DryRun = ptr(v.GetBool("dry-run"))
	}
	if v.IsSet("poll-interval") {
		o.PollInterval = ptr(v.GetDuration("poll-interval"))
	}
	if v.IsSet("idle-timeout") {
		o.IdleTimeout = ptr(v.GetDuration("idle-timeout"))
	}
	if v.IsSet("drain-timeout") {
		o.DrainTimeout = ptr(v.GetDuration("drain-timeout"))
	}
	return o
}

func ptr[T any](v T) *T {
	return &v
}
