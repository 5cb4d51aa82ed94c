package events

// Event type constants for kelindar/event.
const (
	TypeWorkerSpawned uint32 = iota + 1
	TypeWorkerExited
	TypePoolScaled
	TypeStopRequested
	TypeStatusChanged
	TypeSpawnFailed
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// WorkerSpawnedEvent is published after the master started a worker.
type WorkerSpawnedEvent struct {
	TaskID    string `json:"task_id" doc:"Task identifier"`
	TaskName  string `json:"task_name" example:"mailer" doc:"Task name"`
	Index     int    `json:"index" example:"1" doc:"Logical worker index"`
	PID       int    `json:"pid" example:"4242" doc:"Worker process id"`
	Respawn   bool   `json:"respawn" doc:"True when the slot had a worker before"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerSpawnedEvent.
func (e WorkerSpawnedEvent) Type() uint32 { return TypeWorkerSpawned }

// WorkerExitedEvent is published after the master reaped a worker.
type WorkerExitedEvent struct {
	TaskID    string `json:"task_id" doc:"Task identifier"`
	TaskName  string `json:"task_name" example:"mailer" doc:"Task name"`
	Index     int    `json:"index" example:"1" doc:"Logical worker index"`
	PID       int    `json:"pid" example:"4242" doc:"Worker process id"`
	ExitCode  int    `json:"exit_code" example:"0" doc:"Exit code, -1 when unknown"`
	Signal    string `json:"signal,omitempty" example:"killed" doc:"Terminating signal, if any"`
	Requested bool   `json:"requested" doc:"True when the master asked the worker to stop"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WorkerExitedEvent.
func (e WorkerExitedEvent) Type() uint32 { return TypeWorkerExited }

// PoolScaledEvent is published when a task's desired count changes.
type PoolScaledEvent struct {
	TaskID    string `json:"task_id" doc:"Task identifier"`
	TaskName  string `json:"task_name" example:"mailer" doc:"Task name"`
	From      int    `json:"from" example:"3" doc:"Previous desired count"`
	To        int    `json:"to" example:"1" doc:"New desired count"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PoolScaledEvent.
func (e PoolScaledEvent) Type() uint32 { return TypePoolScaled }

// StopRequestedEvent is published when a stop word was sent to a worker.
type StopRequestedEvent struct {
	TaskName  string `json:"task_name" example:"mailer" doc:"Task name"`
	Index     int    `json:"index" example:"3" doc:"Logical worker index"`
	PID       int    `json:"pid" example:"4242" doc:"Worker process id"`
	Reason    string `json:"reason" example:"scale" doc:"scale, reload or shutdown"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StopRequestedEvent.
func (e StopRequestedEvent) Type() uint32 { return TypeStopRequested }

// StatusChangedEvent is published when the master status moves forward.
type StatusChangedEvent struct {
	From      string `json:"from" example:"starting" doc:"Previous status"`
	To        string `json:"to" example:"running" doc:"New status"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// SpawnFailedEvent is published when a worker could not be started.
type SpawnFailedEvent struct {
	TaskName  string `json:"task_name" example:"mailer" doc:"Task name"`
	Index     int    `json:"index" example:"1" doc:"Logical worker index"`
	Error     string `json:"error" doc:"Spawn error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SpawnFailedEvent.
func (e SpawnFailedEvent) Type() uint32 { return TypeSpawnFailed }
