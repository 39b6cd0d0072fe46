// Package transform holds the collaborators a task pipes its files through:
// the stylesheet and markup compilers and the css post-processing filters.
package transform

import (
	"fmt"
	"path"
	"strings"
)

// Asset is one file travelling through a task. Path is slash separated and
// relative to the task destination, Source is the file it was read from.
type Asset struct {
	Path    string
	Source  string
	Content []byte
	Map     *SourceMap
}

// Transform rewrites an asset in place. Rejected input is reported as a
// *CompileError.
type Transform interface {
	Name() string
	Apply(a *Asset) error
}

// CompileError is returned when a collaborator rejects its input.
type CompileError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *CompileError) Error() string {
	switch {
	case e.File == "":
		return e.Msg
	case e.Line <= 0:
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	case e.Column <= 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

// Rename changes the output name of an asset: Suffix is inserted before the
// extension and Ext, when set, replaces it.
type Rename struct {
	Suffix string
	Ext    string
}

func (r Rename) Name() string { return "rename" }

func (r Rename) Apply(a *Asset) error {
	ext := path.Ext(a.Path)
	base := strings.TrimSuffix(a.Path, ext)
	if r.Ext != "" {
		ext = r.Ext
	}
	a.Path = base + r.Suffix + ext
	if a.Map != nil {
		a.Map.File = path.Base(a.Path)
	}
	return nil
}
