// Package process holds what the master and its workers have in common as
// OS processes.
//
// Identity is the per-process record embedded by both roles:
//   - pid and display name
//   - the pipe channel at <dir>/<prefix>.<pid>
//   - the pending exit flag
//
// ExecSpawner starts workers by re-executing the running binary with role
// markers in the environment, and reaps them with a non-blocking wait4:
//   - Spawn never waits on the child
//   - child stdout/stderr are streamed back and re-logged by the master
//   - Reap reports termination without blocking the control loop
//
// Example:
//
//	sp := process.NewExecSpawner(process.SpawnerOptions{
//	    MasterPipe: self.PipePath(),
//	    Logger:     logging.GetLogger("spawner"),
//	})
//	pid, err := sp.Spawn(t, 1)
//	...
//	if done, _ := sp.Reap(pid); done {
//	    // worker is gone
//	}
package process
