package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTaskConfig(t *testing.T, path string, count int) {
	t.Helper()
	content := fmt.Sprintf("[tasks.mailer]\ncount = %d\n", count)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTaskWatcher(t *testing.T, path string, debounce time.Duration, opts ...WatcherOption[map[string]TaskSettings]) *Watcher[map[string]TaskSettings] {
	t.Helper()
	opts = append([]WatcherOption[map[string]TaskSettings]{WithDebounce[map[string]TaskSettings](debounce)}, opts...)
	return NewConfigWatcher(path, LoadTaskSettings, newTestLogger(), opts...)
}

func startWatcher(t *testing.T, w *Watcher[map[string]TaskSettings]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)
}

func mailerCount(t *testing.T, settings map[string]TaskSettings) int {
	t.Helper()
	s, ok := settings["mailer"]
	if !ok || s.Count == nil {
		t.Fatalf("mailer count missing from %+v", settings)
	}
	return *s.Count
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.toml")
	writeTaskConfig(t, path, 1)

	received := make(chan map[string]TaskSettings, 1)
	w := newTaskWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(s map[string]TaskSettings) { received <- s })
	startWatcher(t, w)

	writeTaskConfig(t, path, 4)

	select {
	case s := <-received:
		if got := mailerCount(t, s); got != 4 {
			t.Errorf("count = %d, want 4", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_ReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zba.toml")
	writeTaskConfig(t, path, 1)

	received := make(chan map[string]TaskSettings, 4)
	w := newTaskWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(s map[string]TaskSettings) { received <- s })
	startWatcher(t, w)

	// editors save by writing a sibling and renaming it over the original
	for _, count := range []int{2, 3} {
		tmp := filepath.Join(dir, ".zba.toml.swp")
		writeTaskConfig(t, tmp, count)
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}

		select {
		case s := <-received:
			if got := mailerCount(t, s); got != count {
				t.Errorf("count = %d, want %d", got, count)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for reload after rename %d", count)
		}
	}
}

func TestConfigWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zba.toml")
	writeTaskConfig(t, path, 1)

	var count atomic.Int32
	w := newTaskWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(map[string]TaskSettings) { count.Add(1) })
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(dir, "zba.pid"), []byte("1|/tmp/zba.pipe.1"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reload for a sibling file, got %d", got)
	}
	if w.Path() != path {
		t.Errorf("Path() = %q, want %q", w.Path(), path)
	}
}

func TestConfigWatcher_MultipleHandlers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.toml")
	writeTaskConfig(t, path, 1)

	var count atomic.Int32
	var seen []int
	var mu sync.Mutex

	w := newTaskWatcher(t, path, 50*time.Millisecond)
	for range 3 {
		w.OnReload(func(s map[string]TaskSettings) {
			count.Add(1)
			mu.Lock()
			seen = append(seen, *s["mailer"].Count)
			mu.Unlock()
		})
	}
	startWatcher(t, w)

	writeTaskConfig(t, path, 2)
	time.Sleep(300 * time.Millisecond)

	if got := count.Load(); got != 3 {
		t.Errorf("expected 3 handlers called, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, c := range seen {
		if c != 2 {
			t.Errorf("handler %d got count %d", i, c)
		}
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.toml")
	writeTaskConfig(t, path, 1)

	var count1, count2 atomic.Int32
	w := newTaskWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(map[string]TaskSettings) { count1.Add(1) })
	unsub2 := w.OnReload(func(map[string]TaskSettings) { count2.Add(1) })
	startWatcher(t, w)

	writeTaskConfig(t, path, 10)
	time.Sleep(300 * time.Millisecond)

	unsub2()

	writeTaskConfig(t, path, 20)
	time.Sleep(300 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.toml")
	writeTaskConfig(t, path, 1)

	errorReceived := make(chan error, 1)
	configReceived := make(chan map[string]TaskSettings, 1)

	w := newTaskWatcher(t, path, 50*time.Millisecond,
		WithErrorHandler[map[string]TaskSettings](func(err error) { errorReceived <- err }),
	)
	w.OnReload(func(s map[string]TaskSettings) { configReceived <- s })
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("invalid toml [[["), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.toml")
	writeTaskConfig(t, path, 0)

	var count, last atomic.Int32
	w := newTaskWatcher(t, path, 200*time.Millisecond)
	w.OnReload(func(s map[string]TaskSettings) {
		count.Add(1)
		last.Store(int32(*s["mailer"].Count))
	})
	startWatcher(t, w)

	// Rapid changes within debounce window
	for i := 1; i <= 5; i++ {
		writeTaskConfig(t, path, i)
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := last.Load(); got != 5 {
		t.Errorf("expected final count 5, got %d", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zba.toml")
	writeTaskConfig(t, path, 1)

	var count atomic.Int32
	w := newTaskWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(map[string]TaskSettings) { count.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	// Changes after stop should not trigger handler
	writeTaskConfig(t, path, 99)
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}
