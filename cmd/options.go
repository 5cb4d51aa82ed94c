package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/zba/internal/pipe"
	"github.com/smazurov/zba/pkg/worker"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
// Flag names are derived from field names, so "PipeDir" is --pipe-dir.
type Options struct {
	Config string

	// Supervisor settings
	PipeDir         string `toml:"supervisor.pipe_dir" env:"PIPE_DIR"`
	PipePrefix      string `toml:"supervisor.pipe_prefix" env:"PIPE_PREFIX"`
	PidFile         string `toml:"supervisor.pid_file" env:"PID_FILE"`
	PollIntervalMs  int    `toml:"supervisor.poll_interval_ms" env:"POLL_INTERVAL_MS"`
	MaxExecuteTimes int    `toml:"supervisor.max_execute_times" env:"MAX_EXECUTE_TIMES"`
	ShutdownGraceMs int    `toml:"supervisor.shutdown_grace_ms" env:"SHUTDOWN_GRACE_MS"`
	Daemonize       bool   `toml:"supervisor.daemonize" env:"DAEMONIZE"`
	Foreground      bool
	WatchConfig     bool   `toml:"supervisor.watch_config" env:"WATCH_CONFIG"`
	Timezone        string `toml:"supervisor.timezone" env:"TIMEZONE"`

	// Status API settings
	Listen       string `toml:"supervisor.http_addr" env:"HTTP_ADDR"`
	AuthUsername string `toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	ProcMount string `toml:"metrics.proc_mount" env:"PROC_MOUNT"`
}

// DefaultOptions returns the built-in defaults, the lowest precedence layer.
func DefaultOptions() Options {
	return Options{
		Config:          "zba.toml",
		PipeDir:         pipe.DefaultDir,
		PipePrefix:      pipe.DefaultPrefix,
		PidFile:         defaultPidFile(),
		PollIntervalMs:  int(pipe.DefaultPollInterval / time.Millisecond),
		MaxExecuteTimes: worker.DefaultMaxExecutions,
		Daemonize:       true,
		Timezone:        "Local",
		ProcMount:       "/proc",
	}
}

// defaultPidFile places the pid file next to the binary so every
// invocation finds it regardless of the working directory.
func defaultPidFile() string {
	exe, err := os.Executable()
	if err != nil {
		return "zba.pid"
	}
	return filepath.Join(filepath.Dir(exe), "zba.pid")
}

// PollInterval returns the configured loop interval.
func (o Options) PollInterval() time.Duration {
	if o.PollIntervalMs <= 0 {
		return pipe.DefaultPollInterval
	}
	return time.Duration(o.PollIntervalMs) * time.Millisecond
}

// ShutdownGrace returns how long shutdown waits for workers.
func (o Options) ShutdownGrace() time.Duration {
	if o.ShutdownGraceMs <= 0 {
		return 0
	}
	return time.Duration(o.ShutdownGraceMs) * time.Millisecond
}

// Detach reports whether start should leave the terminal.
func (o Options) Detach() bool {
	return o.Daemonize && !o.Foreground
}

// applyTimezone sets the process-wide location used by timestamps.
func (o Options) applyTimezone() error {
	if o.Timezone == "" || o.Timezone == "Local" {
		return nil
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", o.Timezone, err)
	}
	time.Local = loc
	return nil
}

// bindConfigFlag adds the persistent --config flag.
func bindConfigFlag(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", opts.Config, "Path to configuration file")
}

// bindSupervisorFlags adds the flags that override supervisor settings.
func bindSupervisorFlags(cmd *cobra.Command, opts *Options) {
	f := cmd.Flags()
	f.StringVar(&opts.PipeDir, "pipe-dir", opts.PipeDir, "Directory for process pipes")
	f.StringVar(&opts.PipePrefix, "pipe-prefix", opts.PipePrefix, "File name prefix for process pipes")
	f.StringVar(&opts.PidFile, "pid-file", opts.PidFile, "Pid file path")
	f.IntVar(&opts.PollIntervalMs, "poll-interval-ms", opts.PollIntervalMs, "Supervisor and worker loop interval in milliseconds")
	f.IntVar(&opts.MaxExecuteTimes, "max-execute-times", opts.MaxExecuteTimes, "Iterations before a worker exits and is replaced")
	f.IntVar(&opts.ShutdownGraceMs, "shutdown-grace-ms", opts.ShutdownGraceMs, "Time to wait for workers on shutdown")
	f.BoolVar(&opts.Daemonize, "daemonize", opts.Daemonize, "Detach from the terminal")
	f.BoolVarP(&opts.Foreground, "foreground", "f", opts.Foreground, "Stay in the foreground (overrides daemonize)")
	f.BoolVar(&opts.WatchConfig, "watch-config", opts.WatchConfig, "Apply task count changes from the config file")
	f.StringVar(&opts.Timezone, "timezone", opts.Timezone, "Timezone for log timestamps")
	f.StringVar(&opts.Listen, "listen", opts.Listen, "Status API address, empty disables it")
	f.StringVar(&opts.AuthUsername, "auth-username", opts.AuthUsername, "Status API basic auth username")
	f.StringVar(&opts.AuthPassword, "auth-password", opts.AuthPassword, "Status API basic auth password")
	f.StringVar(&opts.ProcMount, "proc-mount", opts.ProcMount, "procfs mount point for worker memory metrics")
}
