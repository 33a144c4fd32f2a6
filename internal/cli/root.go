package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// riotVersion value is set at build time via ldflags
var riotVersion = "0.0.0"

const envPrefix = "RIOT"

// app holds the state shared by the commands of one invocation
type app struct {
	viper    *viper.Viper
	log      logr.Logger
	closeLog func()
}

// NewRootCommand creates the riot command tree
func NewRootCommand() *cobra.Command {
	a := &app{viper: viper.New(), log: logr.Discard(), closeLog: func() {}}

	rootCmd := &cobra.Command{
		Use:   "riot",
		Short: "Bulk and live data transfer into Redis",
		Long: `riot moves records from files and generators into Redis.

Jobs are described in YAML: each step reads from a source, optionally
transforms records and writes them in chunks to one or more sinks.`,
		Version:       riotVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.closeLog()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("debug", false, "shortcut for --log-level debug")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(
		newRunCommand(a),
		newGenerateCommand(a),
		newPingCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// setup binds flags and environment to viper and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	a.viper.SetEnvPrefix(envPrefix)
	a.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.viper.AutomaticEnv()
	if err := a.viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	level := a.viper.GetString("log-level")
	switch {
	case a.viper.GetBool("debug"):
		level = "debug"
	case a.viper.GetBool("quiet"):
		level = "error"
	}

	var out io.Writer = cmd.ErrOrStderr()
	if path := a.viper.GetString("log-file"); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("unable to open log file: %w", err)
		}
		out = file
		a.closeLog = func() { file.Close() }
	}

	log, err := newLogger(level, out)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// Execute runs the root command until it completes or the process is interrupted.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
