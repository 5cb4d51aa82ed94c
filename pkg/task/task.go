// Package task describes the units of work a supervisor keeps running.
package task

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/smazurov/zba/pkg/timer"
)

// Handle is the worker identity passed to every callback.
type Handle interface {
	PID() int
	Name() string
	TaskID() string
	TaskName() string
	// Index is the 1-based logical slot of the worker in its pool.
	Index() int
	Executions() int
	Env(key string) string
	Logger() *slog.Logger
	// AdjustProcessCount asks the master to run n workers of this task.
	AdjustProcessCount(n int) error
	// RequestExit makes the worker exit after the current iteration.
	RequestExit()
	Timer() *timer.Timer
}

// Func is the per-iteration business callback.
type Func func(w Handle) error

// Hook runs once at worker start or stop.
type Hook func(w Handle) error

// Task is a registered unit of work. Count is the default desired worker
// count; only the supervisor changes it after registration.
type Task struct {
	ID         string
	Name       string
	Count      int
	Work       Func
	OnStart    Hook
	OnStop     Hook
	Env        map[string]string
	Reloadable bool
}

// Option customizes a Task.
type Option func(*Task)

// WithID sets an explicit id instead of the source-derived one.
func WithID(id string) Option {
	return func(t *Task) { t.ID = id }
}

// WithOnStart sets the start hook.
func WithOnStart(h Hook) Option {
	return func(t *Task) { t.OnStart = h }
}

// WithOnStop sets the stop hook.
func WithOnStop(h Hook) Option {
	return func(t *Task) { t.OnStop = h }
}

// WithEnv sets environment overrides applied inside each worker.
func WithEnv(env map[string]string) Option {
	return func(t *Task) {
		t.Env = make(map[string]string, len(env))
		for k, v := range env {
			t.Env[k] = v
		}
	}
}

// WithReloadable controls whether a reload restarts the task's workers.
func WithReloadable(reloadable bool) Option {
	return func(t *Task) { t.Reloadable = reloadable }
}

// New creates a task. The id is derived from the calling source file and
// the name, so it is stable across every process started from the same
// binary. An empty name defaults to the caller's file name.
func New(name string, count int, work Func, opts ...Option) *Task {
	file := callerFile(2)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if count < 0 {
		count = 0
	}

	t := &Task{
		Name:       name,
		Count:      count,
		Work:       work,
		Reloadable: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ID == "" {
		t.ID = deriveID(file, name)
	}
	return t
}

// Valid reports whether the task can be run.
func (t *Task) Valid() error {
	if t == nil {
		return errors.New("nil task")
	}
	if t.Work == nil {
		return errors.New("task " + t.Name + ": no work function")
	}
	if t.ID == "" {
		return errors.New("task " + t.Name + ": empty id")
	}
	return nil
}

func callerFile(skip int) string {
	_, file, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file
}

func deriveID(file, name string) string {
	sum := md5.Sum([]byte(file + "#" + name))
	return hex.EncodeToString(sum[:])
}
