// Package worker runs one task's execution loop inside a worker process.
//
// A Worker owns its process identity and inbox. Each iteration delivers
// queued signals and due timer callbacks, calls the task's work function,
// then checks the exit flag and execution limit before draining the inbox.
// Cleanup (inbox removal, stop hook, timer disarm) happens in one place
// after the loop returns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/internal/logging"
	"github.com/smazurov/zba/internal/pipe"
	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/pkg/task"
	"github.com/smazurov/zba/pkg/timer"
)

// Defaults applied by New.
const (
	DefaultMaxExecutions = 432000
	DefaultPollInterval  = pipe.DefaultPollInterval
)

// ErrNoMaster is returned by AdjustProcessCount when the worker does not
// know the master's pipe.
var ErrNoMaster = errors.New("worker: master pipe unknown")

// Options configures a Worker.
type Options struct {
	Index         int
	PID           int // zero means os.Getpid()
	PipeDir       string
	PipePrefix    string
	MasterPipe    string
	MaxExecutions int // <= 0 means DefaultMaxExecutions
	PollInterval  time.Duration
	// Env overrides the task's own Env map.
	Env    map[string]string
	Logger *slog.Logger
}

type step int

const (
	stepContinue step = iota
	stepExit
)

// Worker is a running task instance. It implements task.Handle.
type Worker struct {
	*process.Identity

	task       *task.Task
	opts       Options
	logger     *slog.Logger
	timer      *timer.Timer
	executions int

	mu    sync.Mutex
	state process.State

	signals  chan os.Signal
	handlers map[os.Signal]func(os.Signal)
}

var _ task.Handle = (*Worker)(nil)

// New builds a worker for t. Nothing is created on disk until Run.
func New(t *task.Task, opts Options) *Worker {
	if opts.MaxExecutions <= 0 {
		opts.MaxExecutions = DefaultMaxExecutions
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("worker")
	}

	id := process.NewIdentity(process.IdentityOptions{
		Name:       t.Name + "[Worker]",
		PID:        opts.PID,
		PipeDir:    opts.PipeDir,
		PipePrefix: opts.PipePrefix,
		Pipe:       pipe.Options{PollInterval: opts.PollInterval},
	})
	logger = logger.With("task", t.Name, "index", opts.Index)

	return &Worker{
		Identity: id,
		task:     t,
		opts:     opts,
		logger:   logger,
		timer:    timer.New(logger),
		state:    process.StateInit,
		signals:  make(chan os.Signal, 8),
		handlers: make(map[os.Signal]func(os.Signal)),
	}
}

// TaskID returns the id of the worker's task.
func (w *Worker) TaskID() string { return w.task.ID }

// TaskName returns the name of the worker's task.
func (w *Worker) TaskName() string { return w.task.Name }

// Index returns the worker's logical slot.
func (w *Worker) Index() int { return w.opts.Index }

// Executions returns how many iterations completed.
func (w *Worker) Executions() int { return w.executions }

// Env reads the process environment, which includes the task's overrides
// once Run has started.
func (w *Worker) Env(key string) string { return os.Getenv(key) }

// Logger returns the worker's logger.
func (w *Worker) Logger() *slog.Logger { return w.logger }

// Timer returns the worker's timer. Callbacks run on the loop's goroutine.
func (w *Worker) Timer() *timer.Timer { return w.timer }

// State returns the lifecycle state.
func (w *Worker) State() process.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s process.State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// HandleSignal registers fn for sig. Only SIGUSR1 and SIGUSR2 are queued;
// handlers run at the start of the next iteration.
func (w *Worker) HandleSignal(sig os.Signal, fn func(os.Signal)) {
	w.handlers[sig] = fn
}

// AdjustProcessCount asks the master to run n workers of this task. It has
// no local effect.
func (w *Worker) AdjustProcessCount(n int) error {
	if w.opts.MasterPipe == "" {
		return ErrNoMaster
	}
	record, err := codec.SetProcessCount{TaskID: w.task.ID, Count: n}.Encode()
	if err != nil {
		return err
	}
	if err := process.Send(w.opts.MasterPipe, record); err != nil {
		w.logger.Warn("Failed to send process count to master", "count", n, "error", err)
		return err
	}
	w.logger.Debug("Requested process count", "count", n)
	return nil
}

// Run executes the loop until the worker exits and returns the process exit
// code. Cancelling ctx makes the loop exit at its next check.
func (w *Worker) Run(ctx context.Context) int {
	if err := w.CreateChannel(); err != nil {
		w.logger.Error("Failed to create worker pipe", "error", err)
		return 1
	}
	w.applyEnv()
	w.SetName(w.Name())

	signal.Notify(w.signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(w.signals)

	w.setState(process.StateRunning)
	w.logger.Info("Worker started", "pipe", w.PipePath())
	w.callHook("start", w.task.OnStart)

	for w.step(ctx) == stepContinue {
	}

	w.setState(process.StateExiting)
	w.cleanup()
	w.setState(process.StateTerminated)
	w.logger.Info("Worker exited", "executions", w.executions)
	return 0
}

func (w *Worker) step(ctx context.Context) step {
	w.dispatchSignals()
	w.timer.Dispatch()

	w.work()

	if w.ExitRequested() || w.executions >= w.opts.MaxExecutions || ctx.Err() != nil {
		return stepExit
	}

	w.drain(ctx)

	w.executions++
	sleep := time.NewTimer(w.opts.PollInterval)
	defer sleep.Stop()
	select {
	case <-ctx.Done():
		return stepExit
	case <-sleep.C:
		return stepContinue
	}
}

func (w *Worker) cleanup() {
	if err := w.ClearChannel(); err != nil {
		w.logger.Warn("Failed to clear worker pipe", "error", err)
	}
	w.callHook("stop", w.task.OnStop)
	w.timer.Del()
}

func (w *Worker) work() {
	defer func() {
		if r := recover(); r != nil {
			info := process.NewPanicInfo(r)
			w.logger.Error("Work function panicked",
				"category", info.Category, "message", info.Message, "location", info.Location())
		}
	}()
	if err := w.task.Work(w); err != nil {
		w.logger.Warn("Work function failed", "error", err)
	}
}

func (w *Worker) callHook(name string, hook task.Hook) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			info := process.NewPanicInfo(r)
			w.logger.Error(fmt.Sprintf("%s hook panicked", name),
				"category", info.Category, "message", info.Message, "location", info.Location())
		}
	}()
	if err := hook(w); err != nil {
		w.logger.Warn(fmt.Sprintf("%s hook failed", name), "error", err)
	}
}

func (w *Worker) drain(ctx context.Context) {
	msgs, err := w.ReadMessages(ctx)
	if err != nil {
		w.logger.Warn("Failed to read worker pipe", "error", err)
	}
	for _, msg := range msgs {
		switch {
		case msg.Signal.Exits():
			w.logger.Info("Exit requested", "signal", string(msg.Signal))
			w.RequestExit()
		case msg.Command != nil:
			w.logger.Debug("Ignoring command sent to worker", "action", string(msg.Command.Action))
		}
	}
}

func (w *Worker) dispatchSignals() {
	for {
		select {
		case sig := <-w.signals:
			if fn, ok := w.handlers[sig]; ok {
				w.callSignalHandler(sig, fn)
			} else {
				w.logger.Debug("Unhandled signal", "signal", sig.String())
			}
		default:
			return
		}
	}
}

func (w *Worker) callSignalHandler(sig os.Signal, fn func(os.Signal)) {
	defer func() {
		if r := recover(); r != nil {
			info := process.NewPanicInfo(r)
			w.logger.Error("Signal handler panicked", "signal", sig.String(),
				"category", info.Category, "message", info.Message, "location", info.Location())
		}
	}()
	fn(sig)
}

func (w *Worker) applyEnv() {
	for _, env := range []map[string]string{w.task.Env, w.opts.Env} {
		for k, v := range env {
			if err := os.Setenv(k, v); err != nil {
				w.logger.Warn("Failed to set environment", "key", k, "error", err)
			}
		}
	}
}
