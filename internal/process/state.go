package process

import "time"

// State is the lifecycle state of a worker process.
type State string

// Worker states.
const (
	StateInit       State = "init"       // Identity built, loop not started
	StateRunning    State = "running"    // Loop active
	StateExiting    State = "exiting"    // Cleanup in progress
	StateTerminated State = "terminated" // Loop returned
)

// Status is the lifecycle status of the master. It only moves forward.
type Status string

// Master statuses.
const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusShutdown Status = "shutdown"
)

// Rank orders statuses so transitions can be checked for monotonicity.
func (s Status) Rank() int {
	switch s {
	case StatusStarting:
		return 0
	case StatusRunning:
		return 1
	case StatusShutdown:
		return 2
	default:
		return -1
	}
}

// Info describes a live worker as seen by the master.
type Info struct {
	TaskID    string    `json:"task_id"`
	TaskName  string    `json:"task_name"`
	Index     int       `json:"index"`
	PID       int       `json:"pid"`
	PipePath  string    `json:"pipe_path"`
	StartedAt time.Time `json:"started_at"`
	Stopping  bool      `json:"stopping"`
}

// TaskSnapshot is the master's view of one task.
type TaskSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Desired    int    `json:"desired"`
	Reloadable bool   `json:"reloadable"`
	Workers    []Info `json:"workers"`
}

// Snapshot is a point-in-time copy of the master's tables, safe to read
// from other goroutines.
type Snapshot struct {
	Status    Status         `json:"status"`
	PID       int            `json:"pid"`
	PipePath  string         `json:"pipe_path"`
	StartedAt time.Time      `json:"started_at"`
	Tasks     []TaskSnapshot `json:"tasks"`
}

// Live returns the number of live workers across all tasks.
func (s Snapshot) Live() int {
	n := 0
	for _, t := range s.Tasks {
		n += len(t.Workers)
	}
	return n
}
