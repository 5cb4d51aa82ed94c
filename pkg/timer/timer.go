// Package timer runs interval callbacks inside the process that owns it.
//
// A Timer has no goroutine of its own. The owner calls Dispatch from its
// control loop; Dispatch never blocks, so callbacks share the loop's thread
// and must return well within one poll interval.
package timer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Resolution is the alarm period. Intervals are rounded up to it.
const Resolution = time.Second

// Callback is a scheduled function. Returned errors are logged.
type Callback func(args ...any) error

// ErrInvalidInterval is returned by Add for a non-positive interval.
var ErrInvalidInterval = errors.New("timer: interval must be positive")

// ErrNilCallback is returned by Add for a nil callback.
var ErrNilCallback = errors.New("timer: nil callback")

type entry struct {
	id         int
	fn         Callback
	args       []any
	interval   time.Duration
	persistent bool
}

// Timer is a cooperative per-process scheduler.
type Timer struct {
	mu     sync.Mutex
	logger *slog.Logger
	ticker *time.Ticker
	now    func() time.Time
	nextID int
	// entries keyed by due unix second
	due map[int64][]entry
}

// New creates a disarmed timer.
func New(logger *slog.Logger) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		logger: logger,
		now:    time.Now,
		due:    make(map[int64][]entry),
	}
}

// Start arms the alarm. Calling it on an armed timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker == nil {
		t.ticker = time.NewTicker(Resolution)
	}
}

// Armed reports whether the alarm is running.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}

// Add schedules fn to run interval from now with args. Persistent entries
// are rescheduled after every run. Add arms the alarm if needed and returns
// an id usable with Remove.
func (t *Timer) Add(interval time.Duration, fn Callback, args []any, persistent bool) (int, error) {
	if interval <= 0 {
		return 0, ErrInvalidInterval
	}
	if fn == nil {
		return 0, ErrNilCallback
	}

	t.Start()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	e := entry{id: t.nextID, fn: fn, args: args, interval: roundUp(interval), persistent: persistent}
	t.schedule(t.now(), e)
	return e.id, nil
}

// Remove cancels a single entry. Unknown ids are ignored.
func (t *Timer) Remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sec, entries := range t.due {
		for i, e := range entries {
			if e.id != id {
				continue
			}
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(t.due, sec)
			} else {
				t.due[sec] = entries
			}
			return
		}
	}
}

// Del cancels every pending entry and disarms the alarm.
func (t *Timer) Del() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.due = make(map[int64][]entry)
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

// Pending returns the number of scheduled entries.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, entries := range t.due {
		n += len(entries)
	}
	return n
}

// Dispatch runs due callbacks if the alarm fired since the last call.
// It returns immediately when the alarm is disarmed or has not fired.
func (t *Timer) Dispatch() int {
	t.mu.Lock()
	ticker := t.ticker
	t.mu.Unlock()
	if ticker == nil {
		return 0
	}
	select {
	case <-ticker.C:
		return t.Tick(t.now())
	default:
		return 0
	}
}

// Tick runs every callback due at or before now and returns how many ran.
func (t *Timer) Tick(now time.Time) int {
	t.mu.Lock()
	var secs []int64
	for sec := range t.due {
		if sec <= now.Unix() {
			secs = append(secs, sec)
		}
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })

	var ready []entry
	for _, sec := range secs {
		ready = append(ready, t.due[sec]...)
		delete(t.due, sec)
	}
	for _, e := range ready {
		if e.persistent {
			t.schedule(now, e)
		}
	}
	t.mu.Unlock()

	for _, e := range ready {
		t.run(e)
	}
	return len(ready)
}

func (t *Timer) schedule(from time.Time, e entry) {
	sec := from.Add(e.interval).Unix()
	t.due[sec] = append(t.due[sec], e)
}

func (t *Timer) run(e entry) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Timer callback panicked", "id", e.id, "panic", fmt.Sprint(r))
		}
	}()
	if err := e.fn(e.args...); err != nil {
		t.logger.Warn("Timer callback failed", "id", e.id, "error", err)
	}
}

func roundUp(d time.Duration) time.Duration {
	if r := d % Resolution; r != 0 {
		d += Resolution - r
	}
	return d
}
