package process

import (
	"fmt"
	"runtime"
	"strings"
)

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Category string
	Message  string
	File     string
	Line     int
}

// NewPanicInfo builds a PanicInfo for a value returned by recover. It must
// be called from the deferred function that recovered.
func NewPanicInfo(r any) PanicInfo {
	info := PanicInfo{
		Category: fmt.Sprintf("%T", r),
		Message:  fmt.Sprint(r),
	}
	info.File, info.Line = panicLocation()
	return info
}

// Location returns file:line, or "unknown".
func (p PanicInfo) Location() string {
	if p.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// panicLocation finds the frame that called panic, skipping runtime frames.
func panicLocation() (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	afterPanic := false
	for {
		frame, more := frames.Next()
		if frame.Function == "runtime.gopanic" {
			afterPanic = true
		} else if afterPanic && !strings.HasPrefix(frame.Function, "runtime.") {
			return frame.File, frame.Line
		}
		if !more {
			break
		}
	}
	return "", 0
}
