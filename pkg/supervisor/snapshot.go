package supervisor

import (
	"github.com/smazurov/zba/internal/process"
)

func (s *Supervisor) publishSnapshot() {
	snap := process.Snapshot{
		Status:    s.status,
		PID:       s.PID(),
		PipePath:  s.PipePath(),
		StartedAt: s.startedAt,
		Tasks:     make([]process.TaskSnapshot, 0, len(s.pools)),
	}
	for _, p := range s.pools {
		ts := process.TaskSnapshot{
			ID:         p.task.ID,
			Name:       p.task.Name,
			Desired:    p.desired,
			Reloadable: p.task.Reloadable,
			Workers:    make([]process.Info, 0, len(p.workers)),
		}
		for _, sh := range p.sorted() {
			ts.Workers = append(ts.Workers, sh.info)
		}
		snap.Tasks = append(snap.Tasks, ts)
	}
	s.snapshot.Store(&snap)
}

// Snapshot returns the tables as of the end of the last loop iteration.
// Safe for concurrent use.
func (s *Supervisor) Snapshot() process.Snapshot {
	if snap := s.snapshot.Load(); snap != nil {
		return *snap
	}
	return process.Snapshot{}
}

// Workers lists every live worker of the last snapshot.
func (s *Supervisor) Workers() []process.Info {
	snap := s.Snapshot()
	out := make([]process.Info, 0, snap.Live())
	for _, t := range snap.Tasks {
		out = append(out, t.Workers...)
	}
	return out
}
