// Package supervisor implements the master process: it forks the worker
// pools, reaps and replaces dead workers, applies scaling commands read
// from its own pipe and turns OS signals into reload and shutdown.
//
// All supervisor state is owned by the goroutine running Run. Other
// goroutines only read the published Snapshot or queue requests through the
// master's pipe and signals.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/internal/daemon"
	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/logging"
	"github.com/smazurov/zba/internal/pipe"
	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/pkg/task"
)

// ErrNoTasks is returned by New when the registry holds no runnable task.
var ErrNoTasks = errors.New("there is no task to run")

// Spawner starts a worker process for a task slot.
type Spawner interface {
	Spawn(t *task.Task, index int) (pid int, err error)
}

// Reaper checks, without blocking, whether a child has terminated.
type Reaper interface {
	Reap(pid int) (exit process.Exit, done bool, err error)
}

// Options configures a Supervisor.
type Options struct {
	PID          int // zero means os.Getpid()
	PipeDir      string
	PipePrefix   string
	PidFile      string // empty disables the pid file
	PollInterval time.Duration
	// ShutdownGrace is how long shutdown keeps reaping workers after the
	// stop broadcast. Zero returns right after the broadcast.
	ShutdownGrace time.Duration

	Spawner Spawner
	Reaper  Reaper
	Bus     *events.Bus
	Logger  *slog.Logger
	// Signals replaces OS signal delivery when set.
	Signals chan os.Signal
	// Notifier receives service manager notifications. Defaults to sd_notify.
	Notifier Notifier
}

// shadow is the master's record of a live worker.
type shadow struct {
	info process.Info
}

// pool is one task's worker table.
type pool struct {
	task    *task.Task
	desired int
	workers map[int]*shadow // by pid
}

// Supervisor is the master process.
type Supervisor struct {
	*process.Identity

	opts   Options
	logger *slog.Logger
	status process.Status

	pools  []*pool
	byID   map[string]*pool
	byName map[string]*pool

	// pids asked to exit, removed exactly once when reaped
	pendingStop map[int]struct{}
	// stop words that could not be delivered yet
	undelivered map[int]codec.Signal

	signals    chan os.Signal
	ownSignals bool
	handlers   map[os.Signal]func()
	masterPID  int
	startedAt  time.Time
	exitCode   int

	snapshot atomic.Pointer[process.Snapshot]
}

// New validates the registry and builds the pool tables. Each pool starts
// with its task's registered count.
func New(reg *task.Registry, opts Options) (*Supervisor, error) {
	tasks := reg.Valid()
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = pipe.DefaultPollInterval
	}
	if opts.Spawner == nil || opts.Reaper == nil {
		sp := process.NewExecSpawner(process.SpawnerOptions{})
		if opts.Spawner == nil {
			opts.Spawner = sp
		}
		if opts.Reaper == nil {
			opts.Reaper = sp
		}
	}
	if opts.Notifier == nil {
		opts.Notifier = systemdNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervisor")
	}

	id := process.NewIdentity(process.IdentityOptions{
		Name:       "Master",
		PID:        opts.PID,
		PipeDir:    opts.PipeDir,
		PipePrefix: opts.PipePrefix,
		Pipe:       pipe.Options{PollInterval: opts.PollInterval},
	})

	s := &Supervisor{
		Identity:    id,
		opts:        opts,
		logger:      logger,
		status:      process.StatusStarting,
		byID:        make(map[string]*pool, len(tasks)),
		byName:      make(map[string]*pool, len(tasks)),
		pendingStop: make(map[int]struct{}),
		undelivered: make(map[int]codec.Signal),
		masterPID:   os.Getpid(),
	}
	for _, t := range tasks {
		p := &pool{task: t, desired: t.Count, workers: make(map[int]*shadow)}
		s.pools = append(s.pools, p)
		s.byID[t.ID] = p
		s.byName[t.Name] = p
	}
	s.handlers = map[os.Signal]func(){
		syscall.SIGUSR1: s.reload,
		syscall.SIGTERM: s.shutdown,
		syscall.SIGINT:  s.shutdown,
		syscall.SIGUSR2: func() { s.logger.Debug("Status signal received") },
	}
	s.publishSnapshot()
	return s, nil
}

// Status returns the current status. Only meaningful on the Run goroutine;
// other goroutines should read Snapshot.
func (s *Supervisor) Status() process.Status { return s.status }

// Start performs the ordered startup after configuration and daemonizing:
// pid file and pipe, the initial worker set, then signal registration.
func (s *Supervisor) Start(ctx context.Context) error {
	s.SetName(s.Name())
	s.startedAt = time.Now()

	if err := s.CreateChannel(); err != nil {
		return fmt.Errorf("create master pipe: %w", err)
	}
	if s.opts.PidFile != "" {
		if err := daemon.WritePidFile(s.opts.PidFile, s.PID(), s.PipePath()); err != nil {
			_ = s.ClearChannel()
			return err
		}
	}
	if sp, ok := s.opts.Spawner.(interface{ SetMasterPipe(string) }); ok {
		sp.SetMasterPipe(s.PipePath())
	}

	for _, p := range s.pools {
		s.publish(events.PoolScaledEvent{TaskID: p.task.ID, TaskName: p.task.Name, From: 0, To: p.desired})
		for index := 1; index <= p.desired; index++ {
			if err := s.fork(p, index); err != nil {
				s.abort()
				return err
			}
		}
	}

	s.registerSignals()
	s.setStatus(process.StatusRunning)
	s.notify(notifyReady)
	s.logger.Info("Supervisor started", "pipe", s.PipePath(), "tasks", len(s.pools))
	s.publishSnapshot()
	return ctx.Err()
}

// Run drives the reconciliation loop until shutdown and returns the exit
// code for the master process. Cancelling ctx triggers a graceful shutdown.
func (s *Supervisor) Run(ctx context.Context) (code int) {
	defer s.checkErrors()

	for {
		if s.iterate(ctx) {
			return s.exitCode
		}
		s.publishSnapshot()

		sleep := time.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			sleep.Stop()
			s.logger.Info("Context cancelled, shutting down")
			s.shutdown()
			return s.exitCode
		case <-sleep.C:
		}
	}
}

// iterate runs one reconciliation pass. It returns true once the
// supervisor has shut down.
func (s *Supervisor) iterate(ctx context.Context) bool {
	s.dispatchSignals()
	if s.status == process.StatusShutdown {
		return true
	}

	s.readCommands(ctx)
	s.reap()
	s.retryStops()
	if err := s.replenish(); err != nil {
		s.logger.Error("Cannot fork worker, aborting", "error", err)
		s.abort()
		return true
	}
	s.notify(notifyWatchdog)
	return false
}

// checkErrors logs a panic escaping the loop unless the supervisor was
// already shutting down, then lets it continue.
func (s *Supervisor) checkErrors() {
	r := recover()
	if r == nil {
		return
	}
	if s.status != process.StatusShutdown {
		info := process.NewPanicInfo(r)
		s.logger.Error("Supervisor terminated by runtime error",
			"pid", s.PID(),
			"category", info.Category,
			"message", info.Message,
			"location", info.Location())
	}
	panic(r)
}

func (s *Supervisor) setStatus(next process.Status) {
	if next.Rank() <= s.status.Rank() {
		return
	}
	prev := s.status
	s.status = next
	s.publish(events.StatusChangedEvent{From: string(prev), To: string(next)})
}

func (s *Supervisor) registerSignals() {
	if s.opts.Signals != nil {
		s.signals = s.opts.Signals
		return
	}
	s.signals = make(chan os.Signal, 16)
	s.ownSignals = true
	signal.Notify(s.signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)
}

func (s *Supervisor) unregisterSignals() {
	if s.ownSignals {
		signal.Stop(s.signals)
		s.ownSignals = false
	}
}

// dispatchSignals runs the handler of every queued signal. A process that
// is not the recorded master ignores them.
func (s *Supervisor) dispatchSignals() {
	if s.signals == nil {
		return
	}
	for {
		select {
		case sig := <-s.signals:
			if os.Getpid() != s.masterPID {
				continue
			}
			if fn, ok := s.handlers[sig]; ok {
				s.logger.Info("Signal received", "signal", sig.String())
				fn()
			}
			if s.status == process.StatusShutdown {
				return
			}
		default:
			return
		}
	}
}

func (s *Supervisor) publish(ev events.Event) {
	s.opts.Bus.Publish(stamp(ev))
}

func stamp(ev events.Event) events.Event {
	now := time.Now().Format(time.RFC3339)
	switch e := ev.(type) {
	case events.WorkerSpawnedEvent:
		e.Timestamp = now
		return e
	case events.WorkerExitedEvent:
		e.Timestamp = now
		return e
	case events.PoolScaledEvent:
		e.Timestamp = now
		return e
	case events.StopRequestedEvent:
		e.Timestamp = now
		return e
	case events.StatusChangedEvent:
		e.Timestamp = now
		return e
	case events.SpawnFailedEvent:
		e.Timestamp = now
		return e
	}
	return ev
}
