package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNotRunning is returned when the pid file is missing or names a dead
// process.
var ErrNotRunning = errors.New("supervisor is not running")

// PidFile is the parsed content of the master's pid file.
type PidFile struct {
	PID  int
	Pipe string
}

// WritePidFile records pid and the master's pipe as "<pid>|<pipe>".
func WritePidFile(path string, pid int, pipePath string) error {
	content := strconv.Itoa(pid)
	if pipePath != "" {
		content += "|" + pipePath
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPidFile parses a pid file. A file holding only a pid is accepted.
func ReadPidFile(path string) (PidFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return PidFile{}, ErrNotRunning
	}
	if err != nil {
		return PidFile{}, fmt.Errorf("read pid file: %w", err)
	}
	pidStr, pipePath, _ := strings.Cut(strings.TrimSpace(string(data)), "|")
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return PidFile{}, fmt.Errorf("invalid pid file %s: %q", path, string(data))
	}
	return PidFile{PID: pid, Pipe: pipePath}, nil
}

// RemovePidFile deletes the pid file. A missing file is not an error.
func RemovePidFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Running reads the pid file and checks the recorded master is alive.
func Running(path string) (PidFile, error) {
	pf, err := ReadPidFile(path)
	if err != nil {
		return pf, err
	}
	if !Alive(pf.PID) {
		return pf, ErrNotRunning
	}
	return pf, nil
}
