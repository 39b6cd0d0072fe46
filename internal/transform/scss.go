package transform

import (
	"encoding/json"
	"path"
	"path/filepath"
	"strings"

	"github.com/bep/golibsass/libsass"
	"github.com/bep/golibsass/libsass/libsasserrors"
	"github.com/pkg/errors"
	"github.com/tdewolff/parse/v2/css"

	"github.com/toastate/frontpipe/internal/helpers"
)

// Stylesheet compiles scss, or the indented syntax for .sass files, into
// css with libsass. Imports are resolved against the importing file's folder
// first, then LoadPaths.
type Stylesheet struct {
	LoadPaths []string
	SourceMap bool
}

func (s *Stylesheet) Name() string { return "scss" }

func (s *Stylesheet) Apply(a *Asset) error {
	in := absPath(a.Source)
	dir := filepath.Dir(in)
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".css"

	opts := libsass.Options{
		OutputStyle:  libsass.ExpandedStyle,
		IncludePaths: append([]string{dir}, s.LoadPaths...),
		SassSyntax:   filepath.Ext(in) == ".sass",
		SourceMapOptions: libsass.SourceMapOptions{
			InputPath: in,
		},
	}
	if s.SourceMap {
		opts.SourceMapOptions.Filename = out + ".map"
		opts.SourceMapOptions.OutputPath = out
		opts.SourceMapOptions.OmitURL = true
	}

	transpiler, err := libsass.New(opts)
	if err != nil {
		return errors.Wrap(err, "libsass")
	}
	res, err := transpiler.Execute(string(helpers.NormalizeNewlines(a.Content)))
	if err != nil {
		return sassError(in, err)
	}
	if err := rejectModuleRules(in, []byte(res.CSS)); err != nil {
		return err
	}

	a.Path = strings.TrimSuffix(a.Path, path.Ext(a.Path)) + ".css"
	a.Content = []byte(res.CSS)
	a.Map = nil
	if s.SourceMap {
		m, err := parseSourceMap(dir, res.SourceMapContent)
		if err != nil {
			return &CompileError{File: in, Msg: "invalid source map: " + err.Error()}
		}
		m.File = path.Base(a.Path)
		a.Map = m
	}
	return nil
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

func sassError(file string, err error) error {
	var serr libsasserrors.Error
	if !errors.As(err, &serr) {
		return &CompileError{File: file, Msg: err.Error()}
	}
	if serr.File != "" && serr.File != "stdin" {
		file = serr.File
	}
	return &CompileError{File: file, Line: serr.Line, Column: serr.Column, Msg: strings.TrimSpace(serr.Message)}
}

// libsass predates the module system and copies @use and @forward to the
// output untouched.
func rejectModuleRules(file string, out []byte) error {
	tokens, err := lexCSS(file, out)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t.tt != css.AtKeywordToken {
			continue
		}
		switch name := strings.ToLower(string(t.data)); name {
		case "@use", "@forward":
			return &CompileError{File: file, Msg: name + " is not supported, use @import"}
		}
	}
	return nil
}

// parseSourceMap decodes a libsass map and makes its sources absolute, they
// are relative to dir.
func parseSourceMap(dir, content string) (*SourceMap, error) {
	m := &SourceMap{}
	if err := json.Unmarshal([]byte(content), m); err != nil {
		return nil, err
	}
	for i, src := range m.Sources {
		if !filepath.IsAbs(src) {
			m.Sources[i] = filepath.Join(dir, filepath.FromSlash(src))
		}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return m, nil
}
