package cli

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/corey-cole/riot"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		vars     map[string]string
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a job described in a YAML file",
		Long: `Run the steps of a job file one after the other.

With --schedule the job runs on a cron schedule until interrupted. A run is
skipped while the previous one is still in progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadJobConfig(args[0])
			if err != nil {
				return err
			}
			if cfg.Variables == nil {
				cfg.Variables = make(map[string]any, len(vars))
			}
			for k, v := range vars {
				cfg.Variables[k] = v
			}
			overrides := stepOverrides(a.viper)
			// fail fast on a configuration that cannot be built
			if _, err := riot.BuildWithOverrides(cfg, overrides); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.startMetrics(ctx); err != nil {
				return err
			}
			if schedule != "" {
				return a.runScheduled(ctx, schedule, cfg, overrides)
			}
			return a.runOnce(ctx, cfg, overrides, cmd)
		},
	}

	cmd.Flags().StringToStringVar(&vars, "var", nil, "job variable, as name=value (repeatable)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression, e.g. \"*/5 * * * *\" or @hourly")
	addStepFlags(cmd.Flags())
	return cmd
}

// runOnce builds a fresh job, since sources cannot be reopened once exhausted
func (a *app) runOnce(ctx context.Context, cfg *config.JobConfig, overrides config.StepOptions, cmd *cobra.Command) error {
	job, err := riot.BuildWithOverrides(cfg, overrides)
	if err != nil {
		return err
	}
	job.SetLogger(a.log)
	job.AddListener(newProgressListener(a.log))

	result, err := job.Execute(ctx)
	if cmd != nil {
		printSummary(cmd, result)
	}
	return err
}

func (a *app) runScheduled(ctx context.Context, spec string, cfg *config.JobConfig, overrides config.StepOptions) error {
	log := a.log.WithName("scheduler")
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	_, err := c.AddFunc(spec, func() {
		if err := a.runOnce(ctx, cfg, overrides, nil); err != nil {
			log.Error(err, "scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log.Info("waiting for scheduled runs", "schedule", spec)
	c.Start()
	<-ctx.Done()
	// wait for a run in progress
	<-c.Stop().Done()
	return nil
}

func printSummary(cmd *cobra.Command, result models.JobResult) {
	out := cmd.ErrOrStderr()
	for _, step := range result.Steps {
		fmt.Fprintf(out, "%s: %s, read %d, written %d, skipped %d, filtered %d in %s\n",
			step.Step, step.Status, step.Read, step.Written, step.Skipped, step.Filtered, step.Duration.Round(time.Millisecond))
	}
}
