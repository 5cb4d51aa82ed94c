package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/smazurov/zba/internal/api"
	"github.com/smazurov/zba/internal/config"
	"github.com/smazurov/zba/internal/daemon"
	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/logging"
	"github.com/smazurov/zba/internal/metrics/collectors"
	"github.com/smazurov/zba/internal/metrics/exporters"
	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/internal/version"
	"github.com/smazurov/zba/pkg/supervisor"
	"github.com/smazurov/zba/pkg/task"
	"github.com/spf13/cobra"
)

// ErrAlreadyRunning is returned by start when the pid file names a live
// master.
var ErrAlreadyRunning = errors.New("supervisor is already running")

func createStartCmd(reg *task.Registry, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the supervisor",
		Long: `Loads the configuration, forks every registered task's worker pool and keeps it running. ` +
			`Detaches from the terminal unless --foreground is given or supervisor.daemonize is false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}
			code, err := runStart(reg, *opts)
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}
	bindSupervisorFlags(cmd, opts)
	return cmd
}

// runStart performs the ordered startup and runs the master until
// shutdown. It returns the master's exit code; setup failures come back as
// errors.
func runStart(reg *task.Registry, opts Options) (int, error) {
	if err := opts.applyTimezone(); err != nil {
		return 1, err
	}

	logCfg := config.LoadLoggingConfig(opts.Config)
	logging.Initialize(logCfg)
	defer func() { _ = logging.Close() }()
	logger := logging.GetLogger("main")

	settings, err := config.LoadTaskSettings(opts.Config)
	if err != nil {
		return 1, err
	}
	if unknown := config.ApplyTaskSettings(reg, settings); len(unknown) > 0 {
		logger.Warn("Config names tasks that are not registered", "tasks", unknown)
	}
	if len(reg.Valid()) == 0 {
		return 1, supervisor.ErrNoTasks
	}

	if daemon.Stage() == daemon.StageNone {
		if pf, runErr := daemon.Running(opts.PidFile); runErr == nil {
			return 1, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pf.PID)
		}
		fmt.Print(version.Banner(os.Getpid(), taskNames(reg)))
	}

	if opts.Detach() {
		master, daemonErr := daemon.Daemonize(daemon.Options{})
		if daemonErr != nil {
			return 1, daemonErr
		}
		if !master {
			return 0, nil
		}
	}

	spawner := process.NewExecSpawner(process.SpawnerOptions{
		Env:        config.Environ(&opts),
		ConfigPath: opts.Config,
	})
	bus := events.New()

	sup, err := supervisor.New(reg, supervisor.Options{
		PipeDir:       opts.PipeDir,
		PipePrefix:    opts.PipePrefix,
		PidFile:       opts.PidFile,
		PollInterval:  opts.PollInterval(),
		ShutdownGrace: opts.ShutdownGrace(),
		Spawner:       spawner,
		Reaper:        spawner,
		Bus:           bus,
		Logger:        logging.GetLogger("supervisor"),
	})
	if err != nil {
		return 1, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopMetrics := startMetrics(ctx, bus, sup, opts.ProcMount, logger)
	defer stopMetrics()

	if err := sup.Start(ctx); err != nil {
		logger.Error("Supervisor failed to start", "error", err)
		return 1, nil
	}

	if opts.Listen != "" {
		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Controller:        sup,
			EventBus:          bus,
			PrometheusHandler: exporters.HTTPHandler(),
		})
		logger.Info("Starting HTTP server", "addr", opts.Listen)
		if err := server.Start(opts.Listen); err != nil {
			logger.Error("Failed to start HTTP server", "error", err)
		} else {
			defer func() {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}()
		}
	}

	if opts.WatchConfig && opts.Config != "" {
		stopWatch := watchTaskCounts(opts.Config, settings, sup, logger)
		defer stopWatch()
	}

	code := sup.Run(ctx)
	logger.Info("Supervisor exiting", "exit_code", code)
	return code, nil
}

// startMetrics wires the event and memory collectors. The returned func
// stops them.
func startMetrics(ctx context.Context, bus *events.Bus, sup *supervisor.Supervisor, procMount string, logger *slog.Logger) func() {
	eventCollector := collectors.NewEventCollector(bus)
	eventCollector.Start()

	memCollector, err := collectors.NewWorkerMemoryCollector(procMount, sup.Workers)
	if err != nil {
		logger.Warn("Worker memory metrics disabled", "error", err)
		return eventCollector.Stop
	}
	if err := memCollector.Start(ctx); err != nil {
		logger.Warn("Failed to start worker memory collector", "error", err)
		return eventCollector.Stop
	}
	return func() {
		_ = memCollector.Stop()
		eventCollector.Stop()
	}
}

// watchTaskCounts turns count edits in the config file into setProcessCount
// requests on the master's pipe.
func watchTaskCounts(path string, initial map[string]config.TaskSettings, sup *supervisor.Supervisor, logger *slog.Logger) func() {
	watcher := config.NewConfigWatcher(path, config.LoadTaskSettings, logger)
	prev := initial
	watcher.OnReload(func(next map[string]config.TaskSettings) {
		for name, count := range config.CountChanges(prev, next) {
			if err := sup.SetProcessCount(name, count); err != nil {
				logger.Warn("Ignoring task count change", "task", name, "error", err)
				continue
			}
			logger.Info("Task count changed in config", "task", name, "count", count)
		}
		prev = next
	})
	if err := watcher.Start(); err != nil {
		logger.Warn("Failed to start config watcher, count reload disabled", "error", err)
		return func() {}
	}
	return func() { _ = watcher.Stop() }
}

func taskNames(reg *task.Registry) []string {
	tasks := reg.Valid()
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name)
	}
	return names
}
