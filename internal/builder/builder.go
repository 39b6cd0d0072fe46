package builder

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/toastate/frontpipe/internal/helpers"
	"github.com/toastate/frontpipe/internal/metrics"
	"github.com/toastate/frontpipe/internal/reload"
	"github.com/toastate/frontpipe/internal/tlogger"
	"github.com/toastate/frontpipe/internal/transform"
	"github.com/toastate/frontpipe/pkg/config"
)

// Task reads the files selected by Inputs, pipes each one through
// Transforms in order and writes the result below Dest, keeping its path
// relative to the static part of the input pattern.
type Task struct {
	Label      string
	Root       string
	Inputs     []string
	Transforms []transform.Transform
	Dest       string
	SourceMaps bool
	Reload     reload.Kind
}

func (t *Task) Name() string { return t.Label }

// Run processes every input even when one of them fails; the policy only
// matters to compositions.
func (t *Task) Run(ctx context.Context, _ Policy) Result {
	res := Result{Name: t.Label}
	start := time.Now()

	tlogger.Debug("task", t.Label, "msg", "Task started")

	files, err := helpers.Expand(t.Root, t.Inputs)
	if err == nil && len(files) == 0 {
		err = &config.ConfigurationError{Key: t.Label, Reason: "no file matches " + strings.Join(t.Inputs, ", ")}
	}
	if err != nil {
		tlogger.Error("task", t.Label, "msg", "Could not list inputs", "err", err)
		res.Errors = append(res.Errors, err)
		metrics.ObserveTask(t.Label, time.Since(start), err)
		return res
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			break
		}
		written, err := t.process(f)
		if err != nil {
			var ce *transform.CompileError
			if errors.As(err, &ce) {
				tlogger.Error("task", t.Label, "msg", "Compile error", "file", f.Path, "err", err)
			} else {
				tlogger.Error("task", t.Label, "msg", "Error processing file", "file", f.Path, "err", err)
			}
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Written = append(res.Written, written...)
	}

	if len(res.Written) > 0 {
		res.Reload = t.Reload
	}

	metrics.ObserveTask(t.Label, time.Since(start), res.Err())
	tlogger.Info("task", t.Label, "msg", "Task finished", "files", len(res.Written), "errors", len(res.Errors), "took", time.Since(start).Round(time.Millisecond))
	return res
}

func (t *Task) process(f helpers.Match) ([]string, error) {
	src := filepath.Join(t.Root, filepath.FromSlash(f.Path))
	content, err := os.ReadFile(src)
	if err != nil {
		return nil, &FileSystemError{Op: "read", Path: src, Err: err}
	}

	asset := &transform.Asset{Path: f.Rel, Source: src, Content: content}
	for _, tr := range t.Transforms {
		if err := tr.Apply(asset); err != nil {
			return nil, errors.Wrapf(err, "%s", tr.Name())
		}
	}

	out := filepath.Join(t.Root, filepath.FromSlash(t.Dest), filepath.FromSlash(asset.Path))
	data := asset.Content

	var written []string
	if t.SourceMaps && asset.Map != nil {
		mapPath := out + ".map"
		m := *asset.Map
		m.File = filepath.Base(out)
		m.Sources = relativeSources(filepath.Dir(out), m.Sources)
		encoded, err := helpers.MarshalJson(&m)
		if err != nil {
			return nil, err
		}
		if err := helpers.WriteFile(mapPath, encoded, 0644); err != nil {
			return nil, &FileSystemError{Op: "write", Path: mapPath, Err: errors.Cause(err)}
		}
		data = appendMapComment(data, filepath.Base(mapPath))
		written = append(written, mapPath)
		metrics.FileWritten(t.Label)
	}

	if err := helpers.WriteFile(out, data, 0644); err != nil {
		return nil, &FileSystemError{Op: "write", Path: out, Err: errors.Cause(err)}
	}
	metrics.FileWritten(t.Label)
	tlogger.Debug("task", t.Label, "msg", "File written", "file", out)

	return append([]string{out}, written...), nil
}

func relativeSources(dir string, sources []string) []string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	out := make([]string, len(sources))
	for i, s := range sources {
		rel, err := filepath.Rel(dir, s)
		if err != nil {
			rel = s
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func appendMapComment(css []byte, name string) []byte {
	out := make([]byte, 0, len(css)+len(name)+32)
	out = append(out, css...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, "\n/*# sourceMappingURL="+path.Base(name)+" */\n"...)
	return out
}
