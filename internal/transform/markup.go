package transform

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/toastate/frontpipe/internal/helpers"
)

var MarkupImportRegexp = regexp.MustCompile(`<!--\s*#import\s+(\S+?)\s*-->`)

var templateLineRegexp = regexp.MustCompile(`:(\d+):`)

const maxImportDepth = 5

// Markup compiles a template into html. Imports written as
// <!-- #import partial.tmpl --> are inlined first, resolved against Folder,
// then the result is executed as an html/template with Vars as data.
type Markup struct {
	Folder string
	Vars   map[string]interface{}
}

func (m *Markup) Name() string { return "markup" }

func (m *Markup) Apply(a *Asset) error {
	src, err := m.expand(a.Source, helpers.NormalizeNewlines(a.Content), 0)
	if err != nil {
		return err
	}

	t, err := template.New(filepath.Base(a.Source)).Parse(string(src))
	if err != nil {
		return templateError(a.Source, err)
	}

	var out bytes.Buffer
	if err := t.Execute(&out, m.Vars); err != nil {
		return templateError(a.Source, err)
	}
	a.Content = out.Bytes()
	return nil
}

func templateError(file string, err error) error {
	ce := &CompileError{File: file, Msg: err.Error()}
	if sub := templateLineRegexp.FindStringSubmatch(err.Error()); sub != nil {
		ce.Line, _ = strconv.Atoi(sub[1])
	}
	return ce
}

func (m *Markup) expand(file string, src []byte, depth int) ([]byte, error) {
	if depth > maxImportDepth {
		return nil, &CompileError{File: file, Msg: "reached max import depth of 5, import loop ?"}
	}

	var firstErr error
	out := MarkupImportRegexp.ReplaceAllFunc(src, func(match []byte) []byte {
		if firstErr != nil {
			return nil
		}
		p := string(MarkupImportRegexp.FindSubmatch(match)[1])
		p = strings.TrimPrefix(filepath.FromSlash(p), string(os.PathSeparator))
		p = filepath.Join(m.Folder, p)

		c, err := os.ReadFile(p)
		if err != nil {
			firstErr = &CompileError{File: file, Line: lineOf(src, match), Msg: "can't import " + p + ": " + err.Error()}
			return nil
		}
		c, err = m.expand(p, helpers.NormalizeNewlines(c), depth+1)
		if err != nil {
			firstErr = err
			return nil
		}
		return bytes.TrimRight(c, "\n")
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func lineOf(src, match []byte) int {
	i := bytes.Index(src, match)
	if i < 0 {
		return 0
	}
	return bytes.Count(src[:i], []byte{'\n'}) + 1
}
