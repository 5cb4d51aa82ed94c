package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// gathered returns the value of the series of family name whose labels
// include all of want.
func gathered(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not found", name, want)
	return 0
}

func TestTaskMetricsCache(t *testing.T) {
	task := "cache-task"
	DeleteTaskMetrics(task)

	if m := GetTaskMetrics(task); m != nil {
		t.Fatal("expected nil for unknown task")
	}

	SetDesired(task, 3)
	WorkerSpawned(task)
	WorkerSpawned(task)
	WorkerExited(task, CauseRequested)
	SpawnFailed(task)

	m := GetTaskMetrics(task)
	if m == nil {
		t.Fatal("expected metrics")
	}
	want := TaskMetrics{Live: 1, Desired: 3, Spawns: 2, Exits: 1, SpawnFailures: 1}
	if *m != want {
		t.Errorf("got %+v, want %+v", *m, want)
	}

	m.Live = 99
	if GetTaskMetrics(task).Live != 1 {
		t.Error("cache was modified through returned copy")
	}

	DeleteTaskMetrics(task)
	if GetTaskMetrics(task) != nil {
		t.Error("expected nil after delete")
	}
}

func TestPrometheusValues(t *testing.T) {
	task := "prom-task"
	DeleteTaskMetrics(task)
	defer DeleteTaskMetrics(task)

	WorkerSpawned(task)
	WorkerSpawned(task)
	WorkerExited(task, CauseSignaled)
	StopRequested(task, "scale")
	SetWorkerRSS(task, 1, 4096)

	byTask := map[string]string{"task": task}
	if got := gathered(t, "zba_workers_live", byTask); got != 1 {
		t.Errorf("live = %v", got)
	}
	if got := gathered(t, "zba_workers_spawns_total", byTask); got != 2 {
		t.Errorf("spawns = %v", got)
	}
	if got := gathered(t, "zba_workers_exits_total", map[string]string{"task": task, "cause": CauseSignaled}); got != 1 {
		t.Errorf("exits = %v", got)
	}
	if got := gathered(t, "zba_workers_stop_requests_total", map[string]string{"task": task, "reason": "scale"}); got != 1 {
		t.Errorf("stop requests = %v", got)
	}
	if got := gathered(t, "zba_worker_rss_bytes", map[string]string{"task": task, "index": "1"}); got != 4096 {
		t.Errorf("rss = %v", got)
	}
}
