package collectors

import (
	"context"
	"time"

	"github.com/prometheus/procfs"
	"github.com/smazurov/zba/internal/logging"
	"github.com/smazurov/zba/internal/metrics"
	"github.com/smazurov/zba/internal/process"
)

type workerKey struct {
	task  string
	index int
}

// WorkerMemoryCollector samples the resident memory of live workers from
// /proc.
type WorkerMemoryCollector struct {
	logger   logging.Logger
	fs       procfs.FS
	workers  func() []process.Info
	interval time.Duration
	seen     map[workerKey]bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWorkerMemoryCollector creates a collector reading procMount, normally
// "/proc". workers lists the processes to sample on each tick.
func NewWorkerMemoryCollector(procMount string, workers func() []process.Info) (*WorkerMemoryCollector, error) {
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, err
	}
	return &WorkerMemoryCollector{
		logger:   logging.GetLogger("metrics"),
		fs:       fs,
		workers:  workers,
		interval: 10 * time.Second,
		seen:     make(map[workerKey]bool),
	}, nil
}

// Start begins sampling.
func (c *WorkerMemoryCollector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.run()
	return nil
}

// Stop stops sampling.
func (c *WorkerMemoryCollector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *WorkerMemoryCollector) run() {
	c.logger.Debug("Starting worker memory collection", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *WorkerMemoryCollector) collect() {
	current := make(map[workerKey]bool)
	for _, w := range c.workers() {
		proc, err := c.fs.Proc(w.PID)
		if err != nil {
			// Reaped between snapshot and sample.
			continue
		}
		stat, err := proc.Stat()
		if err != nil {
			c.logger.Debug("Failed to read worker stat", "pid", w.PID, "error", err)
			continue
		}
		key := workerKey{w.TaskName, w.Index}
		current[key] = true
		metrics.SetWorkerRSS(w.TaskName, w.Index, float64(stat.ResidentMemory()))
	}
	for key := range c.seen {
		if !current[key] {
			metrics.DeleteWorkerRSS(key.task, key.index)
		}
	}
	c.seen = current
}
