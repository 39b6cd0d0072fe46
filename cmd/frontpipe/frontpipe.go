package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/toastate/frontpipe/internal/builder"
	"github.com/toastate/frontpipe/internal/pipeline"
	"github.com/toastate/frontpipe/internal/tlogger"
	"github.com/toastate/frontpipe/internal/watcher"
	"github.com/toastate/frontpipe/pkg/config"
	"github.com/toastate/frontpipe/pkg/server"
)

var CLI struct {
	Comb  CommandBuild `cmd:"" help:"Reformat the scss sources, then compile them."`
	Scss  CommandBuild `cmd:"" help:"Reformat and compile the scss sources, plain and minified."`
	Dev   CommandBuild `cmd:"" help:"Compile the scss sources with a source map."`
	Min   CommandBuild `cmd:"" help:"Compile the minified stylesheet."`
	Pug   CommandBuild `cmd:"" help:"Compile the root template into html."`
	Build CommandBuild `cmd:"" aliases:"b" help:"Compile stylesheets and templates."`
	Cs    CommandCS    `cmd:"" help:"Create the starter project layout."`
	Watch CommandWatch `cmd:"" aliases:"w" help:"Serve the project and rebuild on change. Accepts --dev or --css."`
	Tasks CommandTasks `cmd:"" help:"List the build tasks."`

	ConfigFile string `short:"c" help:"configuration file path (optional)"`
	Verbose    int    `short:"v" help:"Print verbose output." type:"counter"`
}

// knownFlags are the long flags kong parses, anything else after the task
// name is taken as the mode flag.
var knownFlags = []string{"--config-file", "--verbose", "--help", "--port"}

type CommandBuild struct{}

type CommandCS struct{}

type CommandWatch struct {
	Port int `short:"p" help:"Listener port"`
}

type CommandTasks struct{}

type runtime struct {
	cfg      *config.Configuration
	pipeline *pipeline.Pipeline
	mode     pipeline.Mode
}

func main() {
	args, modeFlag := extractMode(os.Args[1:])

	parser := kong.Must(&CLI, kong.Name("frontpipe"), kong.Description("Front-end asset pipeline."), kong.UsageOnError())
	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	applyVerbose(CLI.Verbose)

	mode, ok := pipeline.ParseMode(modeFlag)
	if !ok {
		tlogger.Warn("msg", "Unknown mode, using default", "mode", modeFlag)
	}

	cfg, err := config.Load(CLI.ConfigFile)
	if err != nil {
		tlogger.Fatal("msg", "Could not load configuration", "err", err)
	}
	if CLI.Verbose > 1 {
		tlogger.Debug("msg", "Configuration", "config", cfg.Dump())
	}

	p, err := pipeline.New(cfg)
	tlogger.FatalIf(err)

	err = ctx.Run(ctx, &runtime{cfg: cfg, pipeline: p, mode: mode})
	if err != nil {
		tlogger.Error("msg", "Command failed", "err", err)
		os.Exit(1)
	}
}

// extractMode removes the first unknown --flag following the task name.
func extractMode(args []string) ([]string, string) {
	taskSeen := false
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			taskSeen = true
			continue
		}
		if !taskSeen || !strings.HasPrefix(a, "--") || a == "--" {
			continue
		}
		name := a
		if eq := strings.IndexByte(a, '='); eq >= 0 {
			name = a[:eq]
		}
		if isKnownFlag(name) {
			continue
		}
		rest := append(append([]string(nil), args[:i]...), args[i+1:]...)
		return rest, a
	}
	return args, ""
}

func isKnownFlag(name string) bool {
	for _, f := range knownFlags {
		if f == name {
			return true
		}
	}
	return false
}

func applyVerbose(v int) {
	switch v {
	case 0:
		tlogger.ApplyLogLevel("info")
	case 1:
		tlogger.ApplyLogLevel("debug")
	default:
		tlogger.ApplyLogLevel("all")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (r *CommandBuild) Run(kctx *kong.Context, rt *runtime) error {
	id, err := pipeline.ParseTaskID(strings.Fields(kctx.Command())[0])
	if err != nil {
		return err
	}
	if rt.mode != pipeline.ModeDefault {
		tlogger.Debug("msg", "Mode ignored outside watch", "mode", rt.mode)
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := rt.pipeline.Run(ctx, id, builder.AbortOnError)
	if err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		tlogger.Warn("task", id, "msg", "Tasks skipped", "skipped", strings.Join(res.Skipped, ","))
	}
	return res.Err()
}

func (r *CommandCS) Run(rt *runtime) error {
	ctx, stop := signalContext()
	defer stop()

	written, err := rt.pipeline.Scaffold(ctx)
	if err != nil {
		return err
	}
	tlogger.Info("msg", "Scaffold done", "created", len(written))
	return nil
}

func (r *CommandTasks) Run(rt *runtime) error {
	for _, id := range pipeline.TaskIDs {
		t, err := rt.pipeline.Lookup(id)
		if err != nil {
			fmt.Printf("%s\n", id)
			continue
		}
		fmt.Printf("%s:\n", id)
		builder.Describe(os.Stdout, t)
	}
	return nil
}

func (r *CommandWatch) Run(rt *runtime) error {
	if r.Port > 0 {
		rt.cfg.Serve.Port = r.Port
	}

	srv := server.NewServer(rt.cfg)
	d := watcher.New(rt.cfg.Root, srv, watcher.Options{
		Debounce: rt.cfg.Debounce(),
		Policy:   builder.ContinueOnError,
	})
	for _, rule := range rt.pipeline.WatchRules(rt.mode) {
		if err := d.Register(rule); err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	tlogger.Info("msg", "Watching", "mode", rt.mode, "root", rt.cfg.Root)

	err := srv.Start(ctx)
	stop()
	d.Close()
	return err
}
