package process

import (
	"context"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/internal/pipe"
)

// Identity is the process record shared by workers and the master.
type Identity struct {
	pid     int
	name    string
	channel *pipe.Channel
	decoder codec.Decoder
	exit    bool
}

// IdentityOptions configures an Identity.
type IdentityOptions struct {
	Name       string
	PID        int // zero means os.Getpid()
	PipeDir    string
	PipePrefix string
	Pipe       pipe.Options
}

// NewIdentity creates the identity of the running process. The pipe is not
// created until CreateChannel.
func NewIdentity(opts IdentityOptions) *Identity {
	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	return &Identity{
		pid:     pid,
		name:    opts.Name,
		channel: pipe.New(pipe.Path(opts.PipeDir, opts.PipePrefix, pid), opts.Pipe),
	}
}

// PID returns the process id.
func (id *Identity) PID() int { return id.pid }

// Name returns the display name.
func (id *Identity) Name() string { return id.name }

// PipePath returns the path of the process's inbox.
func (id *Identity) PipePath() string { return id.channel.Path() }

// SetName changes the display name and, best effort, the kernel name ps and
// top show for the process. That name belongs to the main thread, which is
// renamed through /proc whatever thread the caller runs on. Without procfs
// only the calling thread can be renamed, so the goroutine is pinned while
// it does.
func (id *Identity) SetName(name string) {
	id.name = name
	comm := commName(name)
	if err := os.WriteFile("/proc/self/comm", []byte(comm), 0); err == nil {
		return
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if p, err := unix.BytePtrFromString(comm); err == nil {
		_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
	}
}

// commName truncates name to the kernel's 15 byte limit.
func commName(name string) string {
	if len(name) > 15 {
		return name[:15]
	}
	return name
}

// CreateChannel makes the process's inbox.
func (id *Identity) CreateChannel() error {
	return id.channel.Create()
}

// ClearChannel removes the process's inbox. Safe to call repeatedly.
func (id *Identity) ClearChannel() error {
	return id.channel.Clear()
}

// ReadMessages drains the inbox and returns every complete record decoded
// as a message. Partial records are kept for the next call.
func (id *Identity) ReadMessages(ctx context.Context) ([]codec.Message, error) {
	data, err := id.channel.Read(ctx)
	records := id.decoder.Feed(data)
	if len(records) == 0 {
		return nil, err
	}
	msgs := make([]codec.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, codec.Parse(r))
	}
	return msgs, err
}

// RequestExit sets the exit flag.
func (id *Identity) RequestExit() { id.exit = true }

// ExitRequested reports whether the exit flag is set.
func (id *Identity) ExitRequested() bool { return id.exit }

// Send writes one record to another process's inbox.
func Send(path, record string) error {
	return pipe.Write(path, record)
}
