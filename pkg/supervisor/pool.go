package supervisor

import (
	"fmt"
	"sort"
	"time"

	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/pipe"
	"github.com/smazurov/zba/internal/process"
)

// Stop reasons reported in events and metrics.
const (
	reasonScale    = "scale"
	reasonReload   = "reload"
	reasonShutdown = "shutdown"
)

// fork starts a worker for slot index and records its shadow.
func (s *Supervisor) fork(p *pool, index int) error {
	pid, err := s.opts.Spawner.Spawn(p.task, index)
	if err != nil {
		s.publish(events.SpawnFailedEvent{TaskName: p.task.Name, Index: index, Error: err.Error()})
		return fmt.Errorf("fork %s[%d]: %w", p.task.Name, index, err)
	}
	p.workers[pid] = &shadow{info: process.Info{
		TaskID:    p.task.ID,
		TaskName:  p.task.Name,
		Index:     index,
		PID:       pid,
		PipePath:  pipe.Path(s.opts.PipeDir, s.opts.PipePrefix, pid),
		StartedAt: time.Now(),
	}}
	s.logger.Info("Worker forked", "task", p.task.Name, "index", index, "worker_pid", pid)
	s.publish(events.WorkerSpawnedEvent{
		TaskID:   p.task.ID,
		TaskName: p.task.Name,
		Index:    index,
		PID:      pid,
		Respawn:  s.status == process.StatusRunning,
	})
	return nil
}

// reap drops the shadow of every worker that has terminated and clears
// what is left of its pipe.
func (s *Supervisor) reap() {
	for _, p := range s.pools {
		for pid, sh := range p.workers {
			exit, done, err := s.opts.Reaper.Reap(pid)
			if err != nil {
				s.logger.Warn("Failed to check worker", "task", p.task.Name, "worker_pid", pid, "error", err)
				continue
			}
			if !done {
				continue
			}
			s.forget(p, sh, exit)
		}
	}
}

func (s *Supervisor) forget(p *pool, sh *shadow, exit process.Exit) {
	pid := sh.info.PID
	_, requested := s.pendingStop[pid]
	delete(p.workers, pid)
	delete(s.pendingStop, pid)
	delete(s.undelivered, pid)
	if err := pipe.Clear(sh.info.PipePath); err != nil {
		s.logger.Warn("Failed to clear worker pipe", "path", sh.info.PipePath, "error", err)
	}

	level := s.logger.Warn
	if requested {
		level = s.logger.Info
	}
	level("Worker exited", "task", p.task.Name, "index", sh.info.Index, "worker_pid", pid,
		"code", exit.Code, "signal", exit.Signal, "requested", requested)

	s.publish(events.WorkerExitedEvent{
		TaskID:    p.task.ID,
		TaskName:  p.task.Name,
		Index:     sh.info.Index,
		PID:       pid,
		ExitCode:  exit.Code,
		Signal:    exit.Signal,
		Requested: requested,
	})
}

// replenish forks a worker for every slot in [1, desired] without one.
// Surplus workers are never stopped here.
func (s *Supervisor) replenish() error {
	for _, p := range s.pools {
		for _, index := range p.missing() {
			if err := s.fork(p, index); err != nil {
				return err
			}
		}
	}
	return nil
}

// missing returns the free slots in [1, desired] in ascending order. A slot
// held by a stopping worker is not free until that worker is reaped.
func (p *pool) missing() []int {
	taken := make(map[int]bool, len(p.workers))
	for _, sh := range p.workers {
		taken[sh.info.Index] = true
	}
	var free []int
	for index := 1; index <= p.desired; index++ {
		if !taken[index] {
			free = append(free, index)
		}
	}
	return free
}

// sorted returns the pool's workers ordered by slot.
func (p *pool) sorted() []*shadow {
	out := make([]*shadow, 0, len(p.workers))
	for _, sh := range p.workers {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].info.Index != out[j].info.Index {
			return out[i].info.Index < out[j].info.Index
		}
		return out[i].info.PID < out[j].info.PID
	})
	return out
}

// requestStop writes word to a worker's pipe and records it as pending.
// A worker already asked to stop is not asked again.
func (s *Supervisor) requestStop(sh *shadow, word codec.Signal, reason string) {
	pid := sh.info.PID
	if _, pending := s.pendingStop[pid]; pending {
		return
	}
	s.pendingStop[pid] = struct{}{}
	sh.info.Stopping = true
	s.publish(events.StopRequestedEvent{TaskName: sh.info.TaskName, Index: sh.info.Index, PID: pid, Reason: reason})

	if err := process.Send(sh.info.PipePath, string(word)); err != nil {
		// The worker may not have created its pipe yet.
		s.logger.Debug("Stop word not delivered", "task", sh.info.TaskName, "worker_pid", pid, "error", err)
		s.undelivered[pid] = word
		return
	}
	s.logger.Info("Stop requested", "task", sh.info.TaskName, "index", sh.info.Index, "worker_pid", pid, "reason", reason)
}

// retryStops resends stop words that could not be delivered earlier.
func (s *Supervisor) retryStops() {
	for _, p := range s.pools {
		for pid, sh := range p.workers {
			word, ok := s.undelivered[pid]
			if !ok {
				continue
			}
			if err := process.Send(sh.info.PipePath, string(word)); err != nil {
				continue
			}
			delete(s.undelivered, pid)
			s.logger.Info("Stop delivered", "task", p.task.Name, "index", sh.info.Index, "worker_pid", pid)
		}
	}
}
