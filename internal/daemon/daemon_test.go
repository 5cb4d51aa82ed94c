package daemon

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/zba/internal/process"
)

func TestPidFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.pid")

	if err := WritePidFile(path, 1234, "/tmp/zba.pipe.1234"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "1234|/tmp/zba.pipe.1234" {
		t.Errorf("content = %q", data)
	}

	pf, err := ReadPidFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pf.PID != 1234 || pf.Pipe != "/tmp/zba.pipe.1234" {
		t.Errorf("got %+v", pf)
	}

	if err := RemovePidFile(path); err != nil {
		t.Fatal(err)
	}
	if err := RemovePidFile(path); err != nil {
		t.Errorf("second remove: %v", err)
	}
	if _, err := ReadPidFile(path); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestReadPidFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    PidFile
		wantErr bool
	}{
		{"pid only", "42\n", PidFile{PID: 42}, false},
		{"pid and pipe", "42|/run/zba.pipe.42", PidFile{PID: 42, Pipe: "/run/zba.pipe.42"}, false},
		{"garbage", "abc", PidFile{}, true},
		{"zero", "0|x", PidFile{}, true},
		{"empty", "", PidFile{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "zba.pid")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadPidFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.pid")
	if err := WritePidFile(path, os.Getpid(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := Running(path); err != nil {
		t.Errorf("own pid reported dead: %v", err)
	}

	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Skipf("no shell: %v", err)
	}
	if err := WritePidFile(path, cmd.ProcessState.Pid(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := Running(path); !errors.Is(err, ErrNotRunning) {
		t.Errorf("reaped pid reported alive: %v", err)
	}
	if Alive(0) || Alive(-1) {
		t.Error("non-positive pids must not be alive")
	}
}

func TestDaemonizeStages(t *testing.T) {
	t.Setenv(process.EnvDaemonStage, StageMaster)
	t.Setenv(process.EnvRole, process.RoleDaemon)
	defer unix.Umask(unix.Umask(0o022))

	master, err := Daemonize(Options{})
	if err != nil || !master {
		t.Fatalf("final stage: master=%v err=%v", master, err)
	}
	if Stage() != StageNone || process.Role() != "" {
		t.Error("stage markers must be cleared in the master")
	}
}

func TestDaemonizeStartsNextStage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env")
	t.Setenv(process.EnvDaemonStage, "")

	master, err := Daemonize(Options{
		Executable: "/bin/sh",
		Args:       []string{"-c", "env > " + out},
		Env:        []string{"PATH=/usr/bin:/bin"},
	})
	if err != nil {
		t.Skipf("cannot start shell: %v", err)
	}
	if master {
		t.Fatal("first stage must not become master")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(out)
		if strings.Contains(string(data), process.EnvDaemonStage+"="+StageLeader) {
			if !strings.Contains(string(data), process.EnvRole+"="+process.RoleDaemon) {
				t.Errorf("role marker missing: %s", data)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("next stage never ran")
}
