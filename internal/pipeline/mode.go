package pipeline

import (
	"strings"

	"github.com/toastate/frontpipe/pkg/config"
)

// Mode selects the watch rule set.
type Mode int

const (
	ModeDefault Mode = iota
	ModeDev
	ModeCSS
)

func (m Mode) String() string {
	switch m {
	case ModeDev:
		return "dev"
	case ModeCSS:
		return "css"
	}
	return "default"
}

// ParseMode maps a mode flag such as "--dev" to its Mode. An empty flag is
// the default mode. Any other value also yields the default mode, with ok
// false so callers can warn about it.
func ParseMode(flag string) (Mode, bool) {
	switch strings.TrimLeft(flag, "-") {
	case "":
		return ModeDefault, true
	case "dev":
		return ModeDev, true
	case "css":
		return ModeCSS, true
	}
	return ModeDefault, false
}

// TaskID names a task that can be invoked from the command line.
type TaskID string

const (
	TaskComb  TaskID = "comb"
	TaskScss  TaskID = "scss"
	TaskDev   TaskID = "dev"
	TaskMin   TaskID = "min"
	TaskPug   TaskID = "pug"
	TaskBuild TaskID = "build"
	TaskCS    TaskID = "cs"
	TaskWatch TaskID = "watch"
)

var TaskIDs = []TaskID{TaskComb, TaskScss, TaskDev, TaskMin, TaskPug, TaskBuild, TaskCS, TaskWatch}

func ParseTaskID(name string) (TaskID, error) {
	for _, id := range TaskIDs {
		if string(id) == name {
			return id, nil
		}
	}
	return "", &config.ConfigurationError{Key: "task", Reason: "unknown task " + name}
}
