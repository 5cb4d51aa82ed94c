package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Signal is a bare word record.
type Signal string

// Signal words understood by workers.
const (
	SignalStop   Signal = "stop"
	SignalReload Signal = "reload"
)

// Exits reports whether the word asks a worker to finish.
func (s Signal) Exits() bool {
	return s == SignalStop || s == SignalReload
}

// Action names a command.
type Action string

// ActionSetProcessCount changes the desired worker count of one task.
const ActionSetProcessCount Action = "setProcessCount"

// Count bounds for setProcessCount.
const (
	MinCount = 1
	MaxCount = 1000
)

// ClampCount forces n into [MinCount, MaxCount].
func ClampCount(n int) int {
	if n < MinCount {
		return MinCount
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}

// Count is the count field of a command. Any JSON number decodes into it:
// fractions truncate and values beyond the int range saturate, so the
// clamp in Requests sees every out-of-range count.
type Count int

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("invalid count %s: %w", s, err)
	}
	switch {
	case f >= math.MaxInt64:
		*c = Count(math.MaxInt)
	case f <= math.MinInt64:
		*c = Count(math.MinInt)
	default:
		*c = Count(int64(f))
	}
	return nil
}

// ProcessInfo is one entry of a batched setProcessCount command.
type ProcessInfo struct {
	Name  string `json:"name"`
	Count Count  `json:"count"`
}

// Command is a JSON record.
type Command struct {
	Action       Action        `json:"action"`
	TaskID       string        `json:"taskId,omitempty"`
	TaskName     string        `json:"taskName,omitempty"`
	Count        Count         `json:"count"`
	ProcessInfos []ProcessInfo `json:"processInfos,omitempty"`
}

// SetProcessCount is a resolved scaling request. Count is already clamped.
type SetProcessCount struct {
	TaskID   string
	TaskName string
	Count    int
}

// Requests expands the command into scaling requests. Commands with an
// unknown action yield nothing.
func (c *Command) Requests() []SetProcessCount {
	if c.Action != ActionSetProcessCount {
		return nil
	}
	if len(c.ProcessInfos) > 0 {
		reqs := make([]SetProcessCount, 0, len(c.ProcessInfos))
		for _, info := range c.ProcessInfos {
			if info.Name == "" {
				continue
			}
			reqs = append(reqs, SetProcessCount{TaskName: info.Name, Count: ClampCount(int(info.Count))})
		}
		return reqs
	}
	if c.TaskID == "" && c.TaskName == "" {
		return nil
	}
	return []SetProcessCount{{
		TaskID:   c.TaskID,
		TaskName: c.TaskName,
		Count:    ClampCount(int(c.Count)),
	}}
}

// Encode renders the request as a single-line command record.
func (r SetProcessCount) Encode() (string, error) {
	return sonic.MarshalString(Command{
		Action:   ActionSetProcessCount,
		TaskID:   r.TaskID,
		TaskName: r.TaskName,
		Count:    Count(r.Count),
	})
}

// Message is a decoded record: either a command or a signal word.
type Message struct {
	Signal  Signal
	Command *Command
}

// Parse classifies a record. Malformed JSON objects are dropped and come
// back as the zero Message.
func Parse(record string) Message {
	trimmed := strings.TrimSpace(record)
	if strings.HasPrefix(trimmed, "{") {
		var cmd Command
		if err := sonic.UnmarshalString(trimmed, &cmd); err != nil {
			return Message{}
		}
		return Message{Command: &cmd}
	}
	return Message{Signal: Signal(trimmed)}
}
