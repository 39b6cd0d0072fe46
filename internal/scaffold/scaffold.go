// Package scaffold lays out the starter files of a new project.
package scaffold

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/toastate/frontpipe/internal/helpers"
	"github.com/toastate/frontpipe/internal/metrics"
	"github.com/toastate/frontpipe/internal/tlogger"
	"github.com/toastate/frontpipe/pkg/config"
)

// Entry is a bare file when Dir is empty, otherwise a group of files
// sharing Dir.
type Entry struct {
	Dir   string
	Files []string
}

// Paths returns the slash separated paths of the entry in order.
func (e Entry) Paths() []string {
	if e.Dir == "" {
		return append([]string(nil), e.Files...)
	}
	out := make([]string, len(e.Files))
	for i, f := range e.Files {
		out[i] = path.Join(e.Dir, f)
	}
	return out
}

// File is a bare file entry.
func File(p string) Entry {
	return Entry{Files: []string{p}}
}

// Group is a set of files created in the same folder.
func Group(dir string, files ...string) Entry {
	return Entry{Dir: dir, Files: files}
}

// Manifest lists folders to create, possibly empty, and files to create
// with empty content. Paths are slash separated and relative to the target.
type Manifest struct {
	Dirs    []string
	Entries []Entry
}

// Paths returns every file of the manifest in order.
func (m Manifest) Paths() []string {
	var out []string
	for _, e := range m.Entries {
		out = append(out, e.Paths()...)
	}
	return out
}

// DefaultManifest is the starter layout for cfg: the html page, the root
// template, the compiled stylesheet, the main script and the scss partials.
func DefaultManifest(cfg *config.Configuration) Manifest {
	p := cfg.Paths
	scss := make([]string, 0, len(cfg.Scaffold.ScssPartials))
	for _, name := range cfg.Scaffold.ScssPartials {
		scss = append(scss, name+".scss")
	}
	return Manifest{
		Dirs: []string{
			p.Path(config.ScssFolder),
			p.Path(config.TemplatesFolder),
			p.Path(config.CSSFolder),
			p.Path(config.JSFolder),
			p.Path(config.ImagesFolder),
		},
		Entries: []Entry{
			File(path.Join(p.Path(config.HTMLFolder), "index.html")),
			File(p.Path(config.TemplatesRootFile)),
			File(p.Path(config.CSSRootFile)),
			File(path.Join(p.Path(config.JSFolder), "main.js")),
			Group(p.Path(config.ScssFolder), scss...),
		},
	}
}

// Scaffold creates the manifest below root. Missing folders are created
// with their parents, files that already exist are left untouched whatever
// their content. It returns the files it wrote, in manifest order.
func Scaffold(ctx context.Context, root string, m Manifest) ([]string, error) {
	for _, d := range m.Dirs {
		dir := filepath.Join(root, filepath.FromSlash(d))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create folder %s", dir)
		}
	}

	var written []string
	for _, p := range m.Paths() {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		target := filepath.Join(root, filepath.FromSlash(p))

		exists, err := helpers.Exists(target)
		if err != nil {
			return written, errors.Wrapf(err, "stat %s", target)
		}
		if exists {
			tlogger.Debug("scaffold", "skip", "file", target, "msg", "File exists")
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, errors.Wrapf(err, "create folder %s", filepath.Dir(target))
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return written, errors.Wrapf(err, "create %s", target)
		}
		if err := f.Close(); err != nil {
			return written, errors.Wrapf(err, "close %s", target)
		}

		written = append(written, p)
		metrics.FileWritten("scaffold")
		tlogger.Info("scaffold", "create", "file", p)
	}
	return written, nil
}
