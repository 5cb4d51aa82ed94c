package collectors

import (
	"os"
	"testing"
	"time"

	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/metrics"
	"github.com/smazurov/zba/internal/process"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestEventCollector(t *testing.T) {
	task := "collector-task"
	metrics.DeleteTaskMetrics(task)
	defer metrics.DeleteTaskMetrics(task)

	bus := events.New()
	c := NewEventCollector(bus)
	c.Start()
	defer c.Stop()

	bus.Publish(events.PoolScaledEvent{TaskName: task, From: 0, To: 2})
	bus.Publish(events.WorkerSpawnedEvent{TaskName: task, Index: 1, PID: 10})
	bus.Publish(events.WorkerSpawnedEvent{TaskName: task, Index: 2, PID: 11})
	bus.Publish(events.SpawnFailedEvent{TaskName: task, Index: 3})

	waitFor(t, func() bool {
		m := metrics.GetTaskMetrics(task)
		return m != nil && m.Desired == 2 && m.Live == 2 && m.SpawnFailures == 1
	})

	bus.Publish(events.WorkerExitedEvent{TaskName: task, Index: 2, PID: 11, Requested: true})
	waitFor(t, func() bool {
		m := metrics.GetTaskMetrics(task)
		return m.Live == 1 && m.Exits == 1
	})
}

func TestExitCause(t *testing.T) {
	tests := []struct {
		ev   events.WorkerExitedEvent
		want string
	}{
		{events.WorkerExitedEvent{Requested: true, Signal: "killed"}, metrics.CauseRequested},
		{events.WorkerExitedEvent{Signal: "killed"}, metrics.CauseSignaled},
		{events.WorkerExitedEvent{ExitCode: 1}, metrics.CauseExited},
	}
	for _, tt := range tests {
		if got := exitCause(tt.ev); got != tt.want {
			t.Errorf("exitCause(%+v) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func TestWorkerMemoryCollector(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
	task := "memory-task"
	defer metrics.DeleteTaskMetrics(task)

	workers := []process.Info{
		{TaskName: task, Index: 1, PID: os.Getpid()},
		{TaskName: task, Index: 2, PID: 1 << 30},
	}
	c, err := NewWorkerMemoryCollector("/proc", func() []process.Info { return workers })
	if err != nil {
		t.Fatal(err)
	}

	c.collect()
	if !c.seen[workerKey{task, 1}] {
		t.Error("live process not sampled")
	}
	if c.seen[workerKey{task, 2}] {
		t.Error("missing process should be skipped")
	}

	workers = nil
	c.collect()
	if len(c.seen) != 0 {
		t.Errorf("stale series kept: %v", c.seen)
	}
}
