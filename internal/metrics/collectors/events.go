package collectors

import (
	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/metrics"
	"github.com/smazurov/zba/internal/process"
)

// EventCollector turns supervisor events into metric updates.
type EventCollector struct {
	bus    *events.Bus
	unsubs []func()
}

// NewEventCollector creates a collector for bus.
func NewEventCollector(bus *events.Bus) *EventCollector {
	return &EventCollector{bus: bus}
}

// Start subscribes to the bus.
func (c *EventCollector) Start() {
	c.unsubs = []func(){
		c.bus.Subscribe(func(e events.WorkerSpawnedEvent) {
			metrics.WorkerSpawned(e.TaskName)
		}),
		c.bus.Subscribe(func(e events.WorkerExitedEvent) {
			metrics.WorkerExited(e.TaskName, exitCause(e))
			metrics.DeleteWorkerRSS(e.TaskName, e.Index)
		}),
		c.bus.Subscribe(func(e events.PoolScaledEvent) {
			metrics.SetDesired(e.TaskName, e.To)
		}),
		c.bus.Subscribe(func(e events.StopRequestedEvent) {
			metrics.StopRequested(e.TaskName, e.Reason)
		}),
		c.bus.Subscribe(func(e events.SpawnFailedEvent) {
			metrics.SpawnFailed(e.TaskName)
		}),
		c.bus.Subscribe(func(e events.StatusChangedEvent) {
			metrics.SetMasterStatus(process.Status(e.To).Rank())
		}),
	}
}

// Stop unsubscribes from the bus.
func (c *EventCollector) Stop() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

func exitCause(e events.WorkerExitedEvent) string {
	switch {
	case e.Requested:
		return metrics.CauseRequested
	case e.Signal != "":
		return metrics.CauseSignaled
	default:
		return metrics.CauseExited
	}
}
