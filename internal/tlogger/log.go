package tlogger

import (
	"io"
	"os"
	"runtime/debug"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	filter           = level.AllowInfo()
	hlog   log.Logger
)

func init() {
	rebuild()
}

func rebuild() {
	l := log.NewLogfmtLogger(log.NewSyncWriter(out))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.Caller(6))
	hlog = level.NewFilter(l, filter)
}

// ApplyLogLevel sets the minimum level. Unknown values mean info.
func ApplyLogLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()

	switch lvl {
	case "debug":
		filter = level.AllowDebug()
	case "warn":
		filter = level.AllowWarn()
	case "error":
		filter = level.AllowError()
	case "all":
		filter = level.AllowAll()
	default:
		filter = level.AllowInfo()
	}
	rebuild()
}

// SetOutput redirects every subsequent entry to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

func current() log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return hlog
}

// Debug add a log entry w/ Debug level
func Debug(keyvals ...interface{}) {
	level.Debug(current()).Log(keyvals...)
}

// Info add a log entry w/ Info level
func Info(keyvals ...interface{}) {
	level.Info(current()).Log(keyvals...)
}

// Warn add a log entry w/ Warn level
func Warn(keyvals ...interface{}) {
	level.Warn(current()).Log(keyvals...)
}

// Error add a log entry w/ Error level
func Error(keyvals ...interface{}) {
	level.Error(current()).Log(keyvals...)
}

// Fatal add a log entry w/ Error level and exits
func Fatal(keyvals ...interface{}) {
	debug.PrintStack()
	level.Error(current()).Log(keyvals...)
	os.Exit(1)
}

// FatalIf prints a fatal Error level and exits if err != nil
func FatalIf(err error) {
	if err == nil {
		return
	}
	level.Error(current()).Log("err", err)
	os.Exit(1)
}
