package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc/panics"

	"github.com/toastate/frontpipe/internal/builder"
	"github.com/toastate/frontpipe/internal/helpers"
	"github.com/toastate/frontpipe/internal/metrics"
	"github.com/toastate/frontpipe/internal/reload"
	"github.com/toastate/frontpipe/internal/tlogger"
)

// Rule binds file patterns, relative to the watched root, to the runnable
// a matching change triggers.
type Rule struct {
	Name     string
	Patterns []string
	Run      builder.Runnable
}

type Options struct {
	// Debounce groups changes arriving closer than this into one run.
	Debounce time.Duration
	// Policy is handed to every triggered run.
	Policy builder.Policy
	// SkipDirs are folder names never watched.
	SkipDirs []string
	// OnResult, when set, is called after each run.
	OnResult func(rule string, res builder.Result)
}

var defaultSkipDirs = []string{".git", "node_modules"}

type ruleState struct {
	Rule
	timer   *time.Timer
	running bool
	pending bool
}

// Dispatcher runs the rule matching each file change. Runs of one rule are
// serialised: a change arriving during a run queues a single further run.
// Different rules run concurrently.
type Dispatcher struct {
	root     string
	reloader reload.Reloader
	opts     Options

	mu      sync.Mutex
	rules   []*ruleState
	started bool
	closed  bool
	ctx     context.Context

	watcher  *fsnotify.Watcher
	inflight sync.WaitGroup
	done     chan struct{}
}

func New(root string, reloader reload.Reloader, opts Options) *Dispatcher {
	if opts.SkipDirs == nil {
		opts.SkipDirs = defaultSkipDirs
	}
	return &Dispatcher{
		root:     root,
		reloader: reloader,
		opts:     opts,
		ctx:      context.Background(),
		done:     make(chan struct{}),
	}
}

// Register adds a rule. Rules can only be added before Start.
func (d *Dispatcher) Register(r Rule) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("rule %s registered after start", r.Name)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule %s has no pattern", r.Name)
	}
	if r.Run == nil {
		return fmt.Errorf("rule %s has nothing to run", r.Name)
	}
	for _, v := range d.rules {
		if v.Name == r.Name {
			return fmt.Errorf("rule %s registered twice", r.Name)
		}
	}
	d.rules = append(d.rules, &ruleState{Rule: r})
	return nil
}

// Rules returns the registered rules in registration order.
func (d *Dispatcher) Rules() []Rule {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Rule, len(d.rules))
	for i, r := range d.rules {
		out[i] = r.Rule
	}
	return out
}

// Start watches every folder below the root until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.started = true
	d.ctx = ctx
	d.watcher = w
	d.mu.Unlock()

	if err := d.addRecursive(d.root); err != nil {
		w.Close()
		return err
	}

	go d.loop(ctx)
	return nil
}

// Done is closed once the watch loop stopped.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) skip(name string) bool {
	for _, s := range d.opts.SkipDirs {
		if name == s {
			return true
		}
	}
	return false
}

func (d *Dispatcher) addRecursive(folder string) error {
	return filepath.Walk(folder, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if path != folder && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if path != folder && d.skip(fi.Name()) {
			return filepath.SkipDir
		}
		tlogger.Debug("watcher", "add", "path", path)
		return d.watcher.Add(path)
	})
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	defer d.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handle(event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			tlogger.Warn("watcher", "error", "err", err)
		}
	}
}

func (d *Dispatcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() && !d.skip(fi.Name()) {
			if err := d.addRecursive(event.Name); err != nil {
				tlogger.Warn("watcher", "add", "path", event.Name, "err", err)
			}
		}
	}

	rel, err := filepath.Rel(d.root, event.Name)
	if err != nil {
		return
	}
	if d.Dispatch(filepath.ToSlash(rel)) {
		tlogger.Info("msg", "Detected change", "path", rel, "op", event.Op.String())
	}
}

// Dispatch triggers every rule matching the slash separated path and
// reports whether one did. It does nothing once the dispatcher is closed.
func (d *Dispatcher) Dispatch(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	matched := false
	for _, rs := range d.rules {
		if !helpers.MatchAny(rs.Patterns, path) {
			continue
		}
		matched = true
		metrics.WatchTriggered(rs.Name)
		d.triggerLocked(rs)
	}
	return matched
}

func (d *Dispatcher) triggerLocked(rs *ruleState) {
	if d.opts.Debounce <= 0 {
		d.scheduleLocked(rs)
		return
	}
	if rs.timer != nil {
		// a timer that already fired is about to schedule the run anyway
		if rs.timer.Stop() {
			rs.timer.Reset(d.opts.Debounce)
		}
		return
	}
	d.inflight.Add(1)
	rs.timer = time.AfterFunc(d.opts.Debounce, func() {
		d.mu.Lock()
		rs.timer = nil
		d.scheduleLocked(rs)
		d.mu.Unlock()
		d.inflight.Done()
	})
}

func (d *Dispatcher) scheduleLocked(rs *ruleState) {
	if rs.running {
		rs.pending = true
		return
	}
	rs.running = true
	d.inflight.Add(1)
	go d.runLoop(rs)
}

func (d *Dispatcher) runLoop(rs *ruleState) {
	defer d.inflight.Done()
	for {
		d.execute(rs)

		d.mu.Lock()
		if !rs.pending {
			rs.running = false
			d.mu.Unlock()
			return
		}
		rs.pending = false
		d.mu.Unlock()
	}
}

func (d *Dispatcher) execute(rs *ruleState) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	var res builder.Result
	var pc panics.Catcher
	pc.Try(func() {
		res = rs.Run.Run(ctx, d.opts.Policy)
	})
	if r := pc.Recovered(); r != nil {
		tlogger.Error("rule", rs.Name, "msg", "Run panicked", "err", r.Value, "stack", string(r.Stack))
		res = builder.Result{Name: rs.Run.Name(), Errors: []error{r.AsError()}}
	}

	if !res.Success() {
		tlogger.Warn("rule", rs.Name, "msg", "Run finished with errors", "err", res.Err())
	}
	if res.Reload != reload.None && d.reloader != nil {
		d.reloader.Reload(res.Reload)
		metrics.Reloaded(res.Reload.String())
		tlogger.Debug("rule", rs.Name, "msg", "Reload sent", "kind", res.Reload)
	}
	if d.opts.OnResult != nil {
		d.opts.OnResult(rs.Name, res)
	}
}

// Wait blocks until no run is pending or in flight.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close stops watching and waits for the watch loop, then for in-flight
// runs. Triggers arriving after Close are dropped.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	w := d.watcher
	started := d.started
	for _, rs := range d.rules {
		if rs.timer != nil && rs.timer.Stop() {
			rs.timer = nil
			d.inflight.Done()
		}
	}
	d.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	if started {
		<-d.done
	}
	d.Wait()
	return err
}
