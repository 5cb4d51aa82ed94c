package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/smazurov/zba/internal/logging"
	"github.com/smazurov/zba/pkg/task"
)

// OutputHandler receives output lines from worker children.
type OutputHandler interface {
	HandleLine(taskName string, index, pid int, line string)
}

// Exit describes how a reaped child ended.
type Exit struct {
	Code   int
	Signal string
}

// SpawnerOptions configures an ExecSpawner.
type SpawnerOptions struct {
	// Executable to start. Defaults to the running binary.
	Executable string

	// Args passed to the executable.
	Args []string

	// Env is appended to the inherited environment of every child.
	Env []string

	// MasterPipe is the inbox path workers send commands to.
	MasterPipe string

	// ConfigPath is forwarded so children load the same configuration.
	ConfigPath string

	// LogParser turns child output into log records. Defaults to ParseJSONLogLine.
	LogParser LogParser

	// OutputHandler additionally receives raw output lines (optional).
	OutputHandler OutputHandler

	// Logger for spawner operations. If nil, uses the "spawner" module logger.
	Logger logging.Logger

	// OutputLogger re-logs child output. If nil, uses the "worker" module logger.
	OutputLogger logging.Logger
}

// ExecSpawner forks workers by re-executing a binary and reaps them with a
// non-blocking wait. It is driven by the master's single control loop and
// is not safe for concurrent use.
type ExecSpawner struct {
	opts   SpawnerOptions
	logger logging.Logger
	out    logging.Logger
	parser LogParser
	procs  map[int]*os.Process
}

// NewExecSpawner creates a spawner.
func NewExecSpawner(opts SpawnerOptions) *ExecSpawner {
	s := &ExecSpawner{
		opts:   opts,
		logger: opts.Logger,
		out:    opts.OutputLogger,
		parser: opts.LogParser,
		procs:  make(map[int]*os.Process),
	}
	if s.logger == nil {
		s.logger = logging.GetLogger("spawner")
	}
	if s.out == nil {
		s.out = logging.GetLogger("worker")
	}
	if s.parser == nil {
		s.parser = ParseJSONLogLine
	}
	return s
}

// SetMasterPipe sets the inbox path advertised to children spawned later.
func (s *ExecSpawner) SetMasterPipe(path string) {
	s.opts.MasterPipe = path
}

// Spawn starts a worker for t in the given logical slot and returns its pid.
func (s *ExecSpawner) Spawn(t *task.Task, index int) (int, error) {
	exe := s.opts.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("output pipe: %w", err)
	}

	cmd := exec.Command(exe, s.opts.Args...)
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.Env = append(cmd.Env, workerEnv(t.ID, index, s.opts.MasterPipe, s.opts.ConfigPath)...)
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		s.logger.Error("Failed to start worker", "task", t.Name, "index", index, "error", err)
		return 0, err
	}
	// the child holds its own copy of the write end
	_ = w.Close()

	pid := cmd.Process.Pid
	s.procs[pid] = cmd.Process
	s.logger.Debug("Worker started", "task", t.Name, "index", index, "pid", pid)

	go s.streamOutput(r, t.Name, index, pid)
	return pid, nil
}

// Reap checks whether pid has terminated without blocking. A pid that is no
// longer a child of this process counts as terminated.
func (s *ExecSpawner) Reap(pid int) (Exit, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			s.release(pid)
			return Exit{Code: -1}, true, nil
		case err != nil:
			return Exit{}, false, err
		case wpid == 0:
			return Exit{}, false, nil
		}
		s.release(pid)
		return exitFromStatus(ws), true, nil
	}
}

// Signal delivers sig to a tracked child.
func (s *ExecSpawner) Signal(pid int, sig os.Signal) error {
	proc, ok := s.procs[pid]
	if !ok {
		return os.ErrProcessDone
	}
	return proc.Signal(sig)
}

func (s *ExecSpawner) release(pid int) {
	if proc, ok := s.procs[pid]; ok {
		_ = proc.Release()
		delete(s.procs, pid)
	}
}

func exitFromStatus(ws unix.WaitStatus) Exit {
	switch {
	case ws.Exited():
		return Exit{Code: ws.ExitStatus()}
	case ws.Signaled():
		return Exit{Code: 128 + int(ws.Signal()), Signal: ws.Signal().String()}
	default:
		return Exit{Code: -1}
	}
}

// streamOutput re-logs a child's output until the child closes it.
func (s *ExecSpawner) streamOutput(reader io.ReadCloser, taskName string, index, pid int) {
	defer reader.Close()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if s.opts.OutputHandler != nil {
			s.opts.OutputHandler.HandleLine(taskName, index, pid, line)
		}

		level, msg, attrs := s.parser(line)
		attrs = append(attrs, "task", taskName, "index", index, "pid", pid)

		switch level {
		case "fatal", "error":
			s.out.Error(msg, attrs...)
		case "warning":
			s.out.Warn(msg, attrs...)
		case "debug", "trace":
			s.out.Debug(msg, attrs...)
		default:
			s.out.Info(msg, attrs...)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.logger.Warn("Error reading worker output", "pid", pid, "error", err)
	}
}
