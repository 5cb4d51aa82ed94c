package process

import (
	"os"
	"strconv"
)

// Environment markers passed to re-executed children.
const (
	EnvRole        = "ZBA_ROLE"
	EnvTaskID      = "ZBA_TASK_ID"
	EnvWorkerIndex = "ZBA_WORKER_INDEX"
	EnvMasterPipe  = "ZBA_MASTER_PIPE"
	EnvMasterPID   = "ZBA_MASTER_PID"
	EnvConfig      = "ZBA_CONFIG"
	EnvDaemonStage = "ZBA_DAEMON_STAGE"
)

// Roles a re-executed binary can take.
const (
	RoleWorker = "worker"
	RoleDaemon = "daemon"
)

// Role returns the role marker of the running process, empty for the CLI.
func Role() string {
	return os.Getenv(EnvRole)
}

// WorkerEnv is what a worker child learns from its environment.
type WorkerEnv struct {
	TaskID     string
	Index      int
	MasterPipe string
	MasterPID  int
	ConfigPath string
}

// ReadWorkerEnv parses the worker markers of the running process.
func ReadWorkerEnv() (WorkerEnv, error) {
	env := WorkerEnv{
		TaskID:     os.Getenv(EnvTaskID),
		MasterPipe: os.Getenv(EnvMasterPipe),
		ConfigPath: os.Getenv(EnvConfig),
	}
	idx, err := strconv.Atoi(os.Getenv(EnvWorkerIndex))
	if err != nil {
		return env, err
	}
	env.Index = idx
	if s := os.Getenv(EnvMasterPID); s != "" {
		if pid, err := strconv.Atoi(s); err == nil {
			env.MasterPID = pid
		}
	}
	return env, nil
}

// workerEnv renders the markers for one worker child.
func workerEnv(taskID string, index int, masterPipe, configPath string) []string {
	env := []string{
		EnvRole + "=" + RoleWorker,
		EnvTaskID + "=" + taskID,
		EnvWorkerIndex + "=" + strconv.Itoa(index),
		EnvMasterPipe + "=" + masterPipe,
		EnvMasterPID + "=" + strconv.Itoa(os.Getpid()),
	}
	if configPath != "" {
		env = append(env, EnvConfig+"="+configPath)
	}
	return env
}
