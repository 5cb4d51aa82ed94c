package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime/metrics"
)

const heapMetric = "/memory/classes/heap/objects:bytes"

// ProcessHandler stamps records with the pid and heap use of the running
// process and hands them to every sink that accepts the level. A record
// that already carries a pid keeps it, so output re-logged on behalf of a
// worker is attributed to the worker.
type ProcessHandler struct {
	sinks []slog.Handler
	pid   int
}

// NewProcessHandler fans out to sinks.
func NewProcessHandler(sinks ...slog.Handler) *ProcessHandler {
	return &ProcessHandler{sinks: sinks, pid: os.Getpid()}
}

// Enabled implements slog.Handler.
func (h *ProcessHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler. The heap sample is taken once per record.
func (h *ProcessHandler) Handle(ctx context.Context, r slog.Record) error {
	relayed := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "pid" {
			relayed = true
			return false
		}
		return true
	})

	stamped := r.Clone()
	if !relayed {
		stamped.AddAttrs(slog.Int("pid", h.pid), slog.Uint64("mem_kb", heapKB()))
	}
	for _, s := range h.sinks {
		if s.Enabled(ctx, r.Level) {
			_ = s.Handle(ctx, stamped.Clone())
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *ProcessHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = s.WithAttrs(attrs)
	}
	return &ProcessHandler{sinks: sinks, pid: h.pid}
}

// WithGroup implements slog.Handler.
func (h *ProcessHandler) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = s.WithGroup(name)
	}
	return &ProcessHandler{sinks: sinks, pid: h.pid}
}

func heapKB() uint64 {
	sample := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64() / 1024
}
