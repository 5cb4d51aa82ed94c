// Package pipe implements the named-pipe channel every zba process owns.
//
// Each process reads only its own channel, a FIFO at <dir>/<prefix>.<pid>.
// Anyone may write to it. The owner keeps its end open read-write and
// non-blocking for its whole lifetime, so writers never block on open and a
// read with no pending data returns immediately.
package pipe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Defaults for channel placement and reads.
const (
	DefaultDir          = "/tmp/"
	DefaultPrefix       = "zba.pipe"
	DefaultMode         = 0o777
	DefaultReadSize     = 1024
	DefaultPollInterval = 200 * time.Millisecond
)

// Terminator ends every record written to a channel.
const Terminator = '\n'

// Path returns the channel path for pid.
func Path(dir, prefix string, pid int) string {
	if dir == "" {
		dir = DefaultDir
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, prefix+"."+strconv.Itoa(pid))
}

// Options configures a Channel.
type Options struct {
	Mode         uint32
	ReadSize     int
	PollInterval time.Duration
}

// Channel is the inbox of the process that owns it.
type Channel struct {
	path     string
	mode     uint32
	readSize int
	poll     time.Duration
	fd       int
}

// New returns a channel for path. Nothing is created until Create.
func New(path string, opts Options) *Channel {
	c := &Channel{
		path:     path,
		mode:     opts.Mode,
		readSize: opts.ReadSize,
		poll:     opts.PollInterval,
		fd:       -1,
	}
	if c.mode == 0 {
		c.mode = DefaultMode
	}
	if c.readSize <= 0 {
		c.readSize = DefaultReadSize
	}
	if c.poll <= 0 {
		c.poll = DefaultPollInterval
	}
	return c
}

// Path returns the filesystem path of the channel.
func (c *Channel) Path() string {
	return c.path
}

// Create makes the FIFO if it does not exist yet and opens the owner's end.
// A failure here is fatal for the owning process.
func (c *Channel) Create() error {
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		if mkErr := unix.Mkfifo(c.path, c.mode); mkErr != nil && !errors.Is(mkErr, unix.EEXIST) {
			return newError(ErrCodeCreate, c.path, mkErr)
		}
		// mkfifo honours the umask
		if chErr := os.Chmod(c.path, fs.FileMode(c.mode)); chErr != nil {
			return newError(ErrCodeCreate, c.path, chErr)
		}
	} else if err != nil {
		return newError(ErrCodeCreate, c.path, err)
	}
	return c.open()
}

// open opens the channel read-write so the call never waits for a writer.
func (c *Channel) open() error {
	if c.fd >= 0 {
		return nil
	}
	fd, err := unix.Open(c.path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return newError(ErrCodeOpen, c.path, err)
	}
	c.fd = fd
	return nil
}

// Read drains every byte currently buffered in the channel.
//
// If the channel is not open yet, Read waits for the path to appear, polling
// at the configured interval until ctx is done. The returned slice may be
// empty; a partial record is returned as-is and left for the decoder.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	if c.fd < 0 {
		for !exists(c.path) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.poll):
			}
		}
		if err := c.open(); err != nil {
			return nil, err
		}
	}

	var out []byte
	buf := make([]byte, c.readSize)
	for {
		n, err := unix.Read(c.fd, buf)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return out, nil
			default:
				return out, newError(ErrCodeRead, c.path, err)
			}
		}
		if n <= 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// Clear closes the owner's end and removes the FIFO. Safe to call repeatedly.
func (c *Channel) Clear() error {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	return Clear(c.path)
}

// Write sends payload plus one terminator to the channel at path.
//
// The open is non-blocking: a missing path or a channel with no reader means
// the other end is gone and ErrCodeGone is returned. Payloads under PIPE_BUF
// are delivered atomically.
func Write(path, payload string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENXIO) {
			return newError(ErrCodeGone, path, err)
		}
		return newError(ErrCodeOpen, path, err)
	}
	defer unix.Close(fd)

	data := make([]byte, 0, len(payload)+1)
	data = append(data, payload...)
	data = append(data, Terminator)

	n, err := unix.Write(fd, data)
	if err != nil {
		return newError(ErrCodeShortWrite, path, err)
	}
	if n != len(data) {
		return newError(ErrCodeShortWrite, path, errors.New("wrote "+strconv.Itoa(n)+" of "+strconv.Itoa(len(data))+" bytes"))
	}
	return nil
}

// Clear removes the channel at path if present.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newError(ErrCodeClear, path, err)
	}
	return nil
}

// Exists reports whether a channel is present at path.
func Exists(path string) bool {
	return exists(path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
