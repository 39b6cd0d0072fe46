package transform

import (
	"path"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return m
}

// Minify minifies stylesheets. Other assets are rejected.
type Minify struct{}

func (m Minify) Name() string { return "minify" }

func (m Minify) Apply(a *Asset) error {
	if path.Ext(a.Path) != ".css" {
		return &CompileError{File: a.Source, Msg: "no minifier for " + path.Ext(a.Path) + " files"}
	}
	out, err := minifier.Bytes("text/css", a.Content)
	if err != nil {
		return &CompileError{File: a.Source, Msg: err.Error()}
	}
	a.Content = out
	a.Map = nil
	return nil
}
