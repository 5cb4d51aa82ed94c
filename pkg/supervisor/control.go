package supervisor

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/internal/daemon"
	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/pkg/task"
)

// readCommands drains the master's pipe and applies every scaling request.
func (s *Supervisor) readCommands(ctx context.Context) {
	msgs, err := s.ReadMessages(ctx)
	if err != nil {
		s.logger.Warn("Failed to read master pipe", "error", err)
	}
	for _, msg := range msgs {
		if msg.Command == nil {
			if msg.Signal != "" {
				s.logger.Debug("Ignoring signal word sent to master", "word", string(msg.Signal))
			}
			continue
		}
		reqs := msg.Command.Requests()
		if len(reqs) == 0 {
			s.logger.Debug("Ignoring command", "action", string(msg.Command.Action))
		}
		for _, req := range reqs {
			s.applyProcessCount(req)
		}
	}
}

func (s *Supervisor) applyProcessCount(req codec.SetProcessCount) {
	p := s.resolve(req.TaskID, req.TaskName)
	if p == nil {
		s.logger.Warn("setProcessCount for unknown task", "task_id", req.TaskID, "task", req.TaskName)
		return
	}
	s.setProcessCount(p, req.Count)
}

func (s *Supervisor) resolve(id, name string) *pool {
	if id != "" {
		if p, ok := s.byID[id]; ok {
			return p
		}
	}
	if name != "" {
		return s.byName[name]
	}
	return nil
}

// setProcessCount sets the desired count and asks every worker above it to
// stop. Growth happens on the next replenish.
func (s *Supervisor) setProcessCount(p *pool, count int) {
	count = codec.ClampCount(count)
	from := p.desired
	p.desired = count
	p.task.Count = count
	if from != count {
		s.logger.Info("Process count changed", "task", p.task.Name, "from", from, "to", count)
		s.publish(events.PoolScaledEvent{TaskID: p.task.ID, TaskName: p.task.Name, From: from, To: count})
	}
	for _, sh := range p.sorted() {
		if sh.info.Index > count {
			s.requestStop(sh, codec.SignalStop, reasonScale)
		}
	}
}

// reload asks every worker of reloadable tasks to exit; replenish brings
// the pools back.
func (s *Supervisor) reload() {
	for _, p := range s.pools {
		if !p.task.Reloadable {
			continue
		}
		for _, sh := range p.sorted() {
			s.requestStop(sh, codec.SignalReload, reasonReload)
		}
	}
}

// shutdown broadcasts stop, removes the master's pipe and pid file and
// drops every shadow record.
func (s *Supervisor) shutdown() {
	if s.status == process.StatusShutdown {
		return
	}
	s.setStatus(process.StatusShutdown)
	s.notify(notifyStopping)
	s.logger.Info("Shutting down", "workers", s.live())

	for _, p := range s.pools {
		for _, sh := range p.sorted() {
			s.requestStop(sh, codec.SignalStop, reasonShutdown)
		}
	}
	s.drainWorkers()

	if err := s.ClearChannel(); err != nil {
		s.logger.Warn("Failed to clear master pipe", "error", err)
	}
	if s.opts.PidFile != "" {
		if err := daemon.RemovePidFile(s.opts.PidFile); err != nil {
			s.logger.Warn("Failed to remove pid file", "error", err)
		}
	}
	for _, p := range s.pools {
		clear(p.workers)
	}
	clear(s.pendingStop)
	clear(s.undelivered)
	s.unregisterSignals()
	s.publishSnapshot()
}

// drainWorkers reaps stopping workers until they are all gone or the grace
// period ends.
func (s *Supervisor) drainWorkers() {
	if s.opts.ShutdownGrace <= 0 {
		return
	}
	deadline := time.Now().Add(s.opts.ShutdownGrace)
	for s.live() > 0 && time.Now().Before(deadline) {
		s.reap()
		s.retryStops()
		if s.live() == 0 {
			break
		}
		time.Sleep(s.opts.PollInterval)
	}
	if n := s.live(); n > 0 {
		s.logger.Warn("Workers still running after shutdown grace", "workers", n)
	}
}

// abort is the fatal path taken when a worker cannot be forked.
func (s *Supervisor) abort() {
	s.shutdown()
	s.exitCode = 1
}

func (s *Supervisor) live() int {
	n := 0
	for _, p := range s.pools {
		n += len(p.workers)
	}
	return n
}

// SetProcessCount queues a scaling request for the named task through the
// master's own pipe, so the loop stays the only writer of the pool tables.
func (s *Supervisor) SetProcessCount(taskName string, count int) error {
	if _, ok := s.byName[taskName]; !ok {
		return fmt.Errorf("%w: %s", task.ErrNotFound, taskName)
	}
	record, err := codec.SetProcessCount{TaskName: taskName, Count: count}.Encode()
	if err != nil {
		return err
	}
	return process.Send(s.PipePath(), record)
}

// Reload queues a reload by signalling the master.
func (s *Supervisor) Reload() error {
	return syscall.Kill(s.masterPID, syscall.SIGUSR1)
}
