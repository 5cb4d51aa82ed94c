package process

import (
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// LogParser parses a line of child output into a level, message and
// key/value attributes.
type LogParser func(line string) (level, msg string, attrs []any)

// keys the parent logger adds itself
var reservedLogKeys = map[string]bool{
	"time":   true,
	"level":  true,
	"msg":    true,
	"module": true,
	"pid":    true,
}

// ParseJSONLogLine parses a slog JSON record written by a worker.
// Anything that is not a JSON object is returned as an info message.
func ParseJSONLogLine(line string) (level, msg string, attrs []any) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return "info", line, nil
	}

	var record map[string]any
	if err := sonic.UnmarshalString(trimmed, &record); err != nil {
		return "info", line, nil
	}

	level = "info"
	if l, ok := record["level"].(string); ok {
		level = normalizeLevel(l)
	}
	if m, ok := record["msg"].(string); ok {
		msg = m
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		if !reservedLogKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, record[k])
	}
	return level, msg, attrs
}

func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "error", "fatal":
		return "error"
	case "warn", "warning":
		return "warning"
	case "debug", "trace":
		return "debug"
	default:
		return "info"
	}
}
