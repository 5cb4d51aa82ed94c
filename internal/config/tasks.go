package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/zba/pkg/task"
)

// TaskSettings overrides the registered defaults of one task. Nil fields
// leave the default in place.
type TaskSettings struct {
	Count      *int              `toml:"count"`
	Reloadable *bool             `toml:"reloadable"`
	Env        map[string]string `toml:"env"`
}

// TaskFile is the part of the config file that describes tasks.
type TaskFile struct {
	Tasks map[string]TaskSettings `toml:"tasks"`
}

// LoadTaskSettings reads the [tasks.<name>] tables of a TOML config file.
// A missing file yields no settings.
func LoadTaskSettings(path string) (map[string]TaskSettings, error) {
	if path == "" {
		return map[string]TaskSettings{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]TaskSettings{}, nil
	}
	if err != nil {
		return nil, err
	}

	var file TaskFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse task settings: %w", err)
	}
	if file.Tasks == nil {
		file.Tasks = map[string]TaskSettings{}
	}
	return file.Tasks, nil
}

// Apply copies the settings onto t.
func (s TaskSettings) Apply(t *task.Task) {
	if s.Count != nil {
		count := *s.Count
		if count < 0 {
			count = 0
		}
		t.Count = count
	}
	if s.Reloadable != nil {
		t.Reloadable = *s.Reloadable
	}
	if len(s.Env) > 0 {
		if t.Env == nil {
			t.Env = make(map[string]string, len(s.Env))
		}
		for k, v := range s.Env {
			t.Env[k] = v
		}
	}
}

// ApplyTaskSettings applies settings to the matching registered tasks and
// returns the names that matched no task.
func ApplyTaskSettings(reg *task.Registry, settings map[string]TaskSettings) []string {
	var unknown []string
	for name, s := range settings {
		t, ok := reg.LookupName(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		s.Apply(t)
	}
	sort.Strings(unknown)
	return unknown
}

// CountChanges returns the tasks whose configured count differs between
// two loads, mapped to the new count. Tasks without a count are skipped.
func CountChanges(prev, next map[string]TaskSettings) map[string]int {
	changes := make(map[string]int)
	for name, s := range next {
		if s.Count == nil {
			continue
		}
		if old, ok := prev[name]; ok && old.Count != nil && *old.Count == *s.Count {
			continue
		}
		changes[name] = *s.Count
	}
	return changes
}
