// Package metrics provides Prometheus metrics for the supervisor and its workers.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workersLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "zba",
		Subsystem: "workers",
		Name:      "live",
		Help:      "Live worker processes per task",
	}, []string{"task"})

	workersDesired = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "zba",
		Subsystem: "workers",
		Name:      "desired",
		Help:      "Desired worker count per task",
	}, []string{"task"})

	workerSpawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zba",
		Subsystem: "workers",
		Name:      "spawns_total",
		Help:      "Worker processes started",
	}, []string{"task"})

	workerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zba",
		Subsystem: "workers",
		Name:      "exits_total",
		Help:      "Worker processes reaped, by cause",
	}, []string{"task", "cause"})

	spawnFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zba",
		Subsystem: "workers",
		Name:      "spawn_failures_total",
		Help:      "Failed attempts to start a worker",
	}, []string{"task"})

	stopRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zba",
		Subsystem: "workers",
		Name:      "stop_requests_total",
		Help:      "Stop words sent to workers, by reason",
	}, []string{"task", "reason"})

	workerRSS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "zba",
		Subsystem: "worker",
		Name:      "rss_bytes",
		Help:      "Resident set size of a worker process",
	}, []string{"task", "index"})

	masterStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "zba",
		Subsystem: "master",
		Name:      "status",
		Help:      "Master status: 0 starting, 1 running, 2 shutdown",
	})

	// Local cache so tests and the CLI can read values without scraping.
	taskCache   = make(map[string]*TaskMetrics)
	taskCacheMu sync.RWMutex
)

// Exit causes.
const (
	CauseRequested = "requested"
	CauseExited    = "exited"
	CauseSignaled  = "signaled"
)

// TaskMetrics holds current metric values for a task.
type TaskMetrics struct {
	Live          int
	Desired       int
	Spawns        int
	Exits         int
	SpawnFailures int
}

// SetDesired sets the desired worker count for a task.
func SetDesired(task string, n int) {
	workersDesired.WithLabelValues(task).Set(float64(n))
	updateCache(task, func(m *TaskMetrics) { m.Desired = n })
}

// WorkerSpawned records a started worker.
func WorkerSpawned(task string) {
	workerSpawns.WithLabelValues(task).Inc()
	workersLive.WithLabelValues(task).Inc()
	updateCache(task, func(m *TaskMetrics) {
		m.Spawns++
		m.Live++
	})
}

// WorkerExited records a reaped worker.
func WorkerExited(task, cause string) {
	workerExits.WithLabelValues(task, cause).Inc()
	workersLive.WithLabelValues(task).Dec()
	updateCache(task, func(m *TaskMetrics) {
		m.Exits++
		m.Live--
	})
}

// SpawnFailed records a failed spawn attempt.
func SpawnFailed(task string) {
	spawnFailures.WithLabelValues(task).Inc()
	updateCache(task, func(m *TaskMetrics) { m.SpawnFailures++ })
}

// StopRequested records a stop word sent to a worker.
func StopRequested(task, reason string) {
	stopRequests.WithLabelValues(task, reason).Inc()
}

// SetWorkerRSS sets the resident memory of one worker.
func SetWorkerRSS(task string, index int, bytes float64) {
	workerRSS.WithLabelValues(task, strconv.Itoa(index)).Set(bytes)
}

// DeleteWorkerRSS drops the memory series of a reaped worker.
func DeleteWorkerRSS(task string, index int) {
	workerRSS.DeleteLabelValues(task, strconv.Itoa(index))
}

// SetMasterStatus sets the master status rank.
func SetMasterStatus(rank int) {
	masterStatus.Set(float64(rank))
}

// DeleteTaskMetrics removes all series for a task.
func DeleteTaskMetrics(task string) {
	workersLive.DeleteLabelValues(task)
	workersDesired.DeleteLabelValues(task)
	workerSpawns.DeleteLabelValues(task)
	spawnFailures.DeleteLabelValues(task)
	workerExits.DeletePartialMatch(prometheus.Labels{"task": task})
	stopRequests.DeletePartialMatch(prometheus.Labels{"task": task})
	workerRSS.DeletePartialMatch(prometheus.Labels{"task": task})

	taskCacheMu.Lock()
	delete(taskCache, task)
	taskCacheMu.Unlock()
}

// GetTaskMetrics returns current metric values for a task.
func GetTaskMetrics(task string) *TaskMetrics {
	taskCacheMu.RLock()
	defer taskCacheMu.RUnlock()
	if m, ok := taskCache[task]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(task string, update func(*TaskMetrics)) {
	taskCacheMu.Lock()
	defer taskCacheMu.Unlock()
	m, ok := taskCache[task]
	if !ok {
		m = &TaskMetrics{}
		taskCache[task] = m
	}
	update(m)
}
