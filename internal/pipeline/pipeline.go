// Package pipeline holds the project tasks, their compositions and the watch
// rules of every mode.
package pipeline

import (
	"context"
	"fmt"

	"github.com/toastate/frontpipe/internal/builder"
	"github.com/toastate/frontpipe/internal/reload"
	"github.com/toastate/frontpipe/internal/scaffold"
	"github.com/toastate/frontpipe/internal/transform"
	"github.com/toastate/frontpipe/internal/watcher"
	"github.com/toastate/frontpipe/pkg/config"
)

// Pipeline is built once per process from the configuration. Its tasks are
// immutable and may be run any number of times.
type Pipeline struct {
	cfg *config.Configuration

	compileScss    *builder.Task
	compileScssMin *builder.Task
	compileScssDev *builder.Task
	compilePug     *builder.Task
	comb           *builder.Task

	compositions map[TaskID]builder.Runnable
}

func New(cfg *config.Configuration) (*Pipeline, error) {
	if err := cfg.Paths.Require(config.Roles...); err != nil {
		return nil, err
	}

	urls, err := transform.NewRewriteURLs(cfg.Images.Search, cfg.Images.Replace)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "images.search", Reason: err.Error()}
	}

	p := &Pipeline{cfg: cfg}
	paths := cfg.Paths
	loadPaths := []string{cfg.Abs(paths.Path(config.ScssFolder))}

	p.compileScss = &builder.Task{
		Label:  "compileScss",
		Root:   cfg.Root,
		Inputs: paths.Get(config.ScssRootFile),
		Transforms: []transform.Transform{
			&transform.Stylesheet{LoadPaths: loadPaths},
			transform.DiscardComments{},
			transform.PackMediaQueries{},
			urls,
		},
		Dest:   paths.Path(config.CSSFolder),
		Reload: reload.CSS,
	}

	p.compileScssMin = &builder.Task{
		Label:  "compileScssMin",
		Root:   cfg.Root,
		Inputs: paths.Get(config.ScssRootFile),
		Transforms: []transform.Transform{
			&transform.Stylesheet{LoadPaths: loadPaths},
			urls,
			transform.DiscardComments{},
			transform.PackMediaQueries{},
			transform.Minify{},
			transform.Rename{Suffix: cfg.MinSuffix},
		},
		Dest:   paths.Path(config.CSSFolder),
		Reload: reload.CSS,
	}

	p.compileScssDev = &builder.Task{
		Label:  "compileScssDev",
		Root:   cfg.Root,
		Inputs: paths.Get(config.ScssRootFile),
		Transforms: []transform.Transform{
			&transform.Stylesheet{LoadPaths: loadPaths, SourceMap: true},
			transform.DiscardComments{},
			transform.PackMediaQueries{},
			urls,
		},
		Dest:       paths.Path(config.CSSFolder),
		SourceMaps: true,
		Reload:     reload.CSS,
	}

	p.compilePug = &builder.Task{
		Label:  "compilePug",
		Root:   cfg.Root,
		Inputs: paths.Get(config.TemplatesRootFile),
		Transforms: []transform.Transform{
			&transform.Markup{Folder: cfg.Abs(paths.Path(config.TemplatesFolder)), Vars: cfg.Vars},
			transform.Rename{Ext: ".html"},
		},
		Dest:   paths.Path(config.HTMLFolder),
		Reload: reload.Page,
	}

	p.comb = &builder.Task{
		Label:      "comb",
		Root:       cfg.Root,
		Inputs:     paths.Get(config.ScssAllFiles),
		Transforms: []transform.Transform{transform.Comb{}},
		Dest:       paths.Path(config.ScssFolder),
	}

	scss := builder.Series("scss", p.comb, p.compileScss, p.compileScssMin)
	p.compositions = map[TaskID]builder.Runnable{
		TaskComb: scss,
		TaskScss: scss,
		TaskDev:  builder.Series("dev", p.compileScssDev),
		TaskMin:  builder.Series("min", p.compileScssMin),
		TaskPug:  builder.Series("pug", p.compilePug),
		TaskBuild: builder.Parallel("build",
			builder.Series("styles", p.compileScss, p.compileScssMin),
			p.compilePug,
		),
	}
	return p, nil
}

// Lookup returns the composition run by a build task. Scaffold and watch
// are not compositions and have their own entry points.
func (p *Pipeline) Lookup(id TaskID) (builder.Runnable, error) {
	r, ok := p.compositions[id]
	if !ok {
		return nil, fmt.Errorf("%s is not a build task", id)
	}
	return r, nil
}

// Run runs the composition of a build task with policy.
func (p *Pipeline) Run(ctx context.Context, id TaskID, policy builder.Policy) (builder.Result, error) {
	r, err := p.Lookup(id)
	if err != nil {
		return builder.Result{}, err
	}
	return r.Run(ctx, policy), nil
}

// Scaffold lays out the starter project below the root.
func (p *Pipeline) Scaffold(ctx context.Context) ([]string, error) {
	return scaffold.Scaffold(ctx, p.cfg.Root, scaffold.DefaultManifest(p.cfg))
}

// WatchRules returns the rules of mode. The html, template and script rules
// are part of every mode.
func (p *Pipeline) WatchRules(mode Mode) []watcher.Rule {
	paths := p.cfg.Paths

	var rules []watcher.Rule
	switch mode {
	case ModeDev:
		rules = append(rules, watcher.Rule{
			Name:     "scss",
			Patterns: paths.Get(config.ScssAllFiles),
			Run:      builder.Series("scss-dev", p.compileScssDev),
		})
	case ModeCSS:
		rules = append(rules, watcher.Rule{
			Name:     "css",
			Patterns: paths.Get(config.CSSAllFiles),
			Run:      &builder.Signal{Kind: reload.CSS},
		})
	default:
		rules = append(rules, watcher.Rule{
			Name:     "scss",
			Patterns: paths.Get(config.ScssAllFiles),
			Run:      builder.Series("scss", p.compileScss, p.compileScssMin),
		})
	}

	return append(rules,
		watcher.Rule{
			Name:     "html",
			Patterns: paths.Get(config.HTMLAllFiles),
			Run:      &builder.Signal{Kind: reload.Page},
		},
		watcher.Rule{
			Name:     "templates",
			Patterns: paths.Get(config.TemplatesAllFiles),
			Run:      builder.Series("pug", p.compilePug, &builder.Signal{Kind: reload.Page}),
		},
		watcher.Rule{
			Name:     "js",
			Patterns: paths.Get(config.JSAllFiles),
			Run:      &builder.Signal{Kind: reload.Page},
		},
	)
}
