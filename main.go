package main

import (
	"time"

	"github.com/smazurov/zba/cmd"
	"github.com/smazurov/zba/pkg/task"
)

func main() {
	reg := task.NewRegistry()
	reg.MustRegister(
		task.New("heartbeat", 1, heartbeat,
			task.WithOnStart(startHeartbeat),
			task.WithReloadable(false),
		),
		task.New("sampler", 2, sample,
			task.WithEnv(map[string]string{"SAMPLER_BATCH": "10"}),
		),
	)
	cmd.Execute(reg)
}

// heartbeat idles; its timer logs a beat every ten seconds.
func heartbeat(task.Handle) error { return nil }

func startHeartbeat(w task.Handle) error {
	_, err := w.Timer().Add(10*time.Second, func(...any) error {
		w.Logger().Info("beat", "executions", w.Executions())
		return nil
	}, nil, true)
	return err
}

// sample logs a line every 50 iterations and asks for one more worker
// the first time the first worker gets there.
func sample(w task.Handle) error {
	if w.Executions() == 0 || w.Executions()%50 != 0 {
		return nil
	}
	w.Logger().Info("sample", "batch", w.Env("SAMPLER_BATCH"), "executions", w.Executions())
	if w.Index() == 1 && w.Executions() == 50 {
		return w.AdjustProcessCount(3)
	}
	return nil
}
