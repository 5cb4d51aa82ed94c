package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/zba/internal/config"
	"github.com/smazurov/zba/internal/logging"
	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/pkg/task"
	"github.com/smazurov/zba/pkg/worker"
)

// RunWorker is the entry point of a re-executed worker child. It resolves
// the same configuration as the master, finds its task in reg and runs the
// worker loop, returning the process exit code.
func RunWorker(reg *task.Registry) int {
	// stdout is a pipe read by the master; once the master is gone, log
	// writes must fail with EPIPE instead of killing the worker before its
	// cleanup runs.
	signal.Ignore(syscall.SIGPIPE)

	env, err := process.ReadWorkerEnv()
	if err != nil {
		printError(os.Stderr, err)
		return 1
	}

	opts := DefaultOptions()
	opts.Config = env.ConfigPath
	if err := config.LoadConfig(&opts, nil); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	_ = opts.applyTimezone()

	// The master re-logs worker output, so workers write JSON to stdout only.
	logCfg := config.LoadLoggingConfig(opts.Config)
	logCfg.Format = "json"
	logCfg.File = ""
	logCfg.NoJournal = true
	logging.Initialize(logCfg)
	defer func() { _ = logging.Close() }()
	logger := logging.GetLogger("worker")

	if settings, err := config.LoadTaskSettings(opts.Config); err != nil {
		logger.Warn("Failed to load task settings", "error", err)
	} else {
		config.ApplyTaskSettings(reg, settings)
	}

	t, ok := reg.Lookup(env.TaskID)
	if !ok {
		logger.Error("Task not registered in this binary", "task_id", env.TaskID)
		return 1
	}

	w := worker.New(t, worker.Options{
		Index:         env.Index,
		PipeDir:       opts.PipeDir,
		PipePrefix:    opts.PipePrefix,
		MasterPipe:    env.MasterPipe,
		MaxExecutions: opts.MaxExecuteTimes,
		PollInterval:  opts.PollInterval(),
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	return w.Run(ctx)
}
