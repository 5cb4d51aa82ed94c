// Package daemon detaches the master from its terminal and manages the pid
// file.
//
// Go cannot fork a running runtime, so the classic double fork is done by
// re-executing the binary twice. Stage one becomes a session leader, stage
// two is started from it and becomes the master. Each earlier process exits
// as soon as its successor is started.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/smazurov/zba/internal/process"
)

// Stages of the re-exec chain, carried in process.EnvDaemonStage.
const (
	StageNone   = ""
	StageLeader = "1"
	StageMaster = "2"
)

// Options configures Daemonize.
type Options struct {
	// Executable defaults to os.Executable().
	Executable string
	// Args defaults to os.Args[1:].
	Args []string
	// Env is the base environment, defaults to os.Environ().
	Env []string
}

// Stage returns the daemon stage of the running process.
func Stage() string {
	return os.Getenv(process.EnvDaemonStage)
}

// Daemonize advances the running process one step along the re-exec chain.
// It returns true only in the final stage, after which the caller is the
// detached master. When it returns false with a nil error the caller must
// exit 0.
func Daemonize(opts Options) (bool, error) {
	switch Stage() {
	case StageMaster:
		unix.Umask(0)
		if err := os.Unsetenv(process.EnvDaemonStage); err != nil {
			return false, err
		}
		if err := os.Unsetenv(process.EnvRole); err != nil {
			return false, err
		}
		return true, nil
	case StageLeader:
		return false, reexec(opts, StageMaster, false)
	default:
		return false, reexec(opts, StageLeader, true)
	}
}

func reexec(opts Options, stage string, setsid bool) error {
	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
	}
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(env,
		process.EnvRole+"="+process.RoleDaemon,
		process.EnvDaemonStage+"="+stage,
	)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: setsid}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize stage %s: %w", stage, err)
	}
	return cmd.Process.Release()
}
