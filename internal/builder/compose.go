package builder

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/toastate/frontpipe/internal/tlogger"
)

type combination int

const (
	sequential combination = iota
	concurrent
)

// Composition runs its members one after the other or all at once.
// Compositions nest.
type Composition struct {
	name    string
	mode    combination
	members []Runnable
}

// Series runs members in order: a member starts only once the previous one
// returned.
func Series(name string, members ...Runnable) *Composition {
	return &Composition{name: name, mode: sequential, members: members}
}

// Parallel starts every member at once and returns when the slowest one
// is done. A failing member never stops its siblings.
func Parallel(name string, members ...Runnable) *Composition {
	return &Composition{name: name, mode: concurrent, members: members}
}

func (c *Composition) Name() string { return c.name }

// Members returns the direct members of the composition.
func (c *Composition) Members() []Runnable {
	return append([]Runnable(nil), c.members...)
}

func (c *Composition) Concurrent() bool {
	return c.mode == concurrent
}

func (c *Composition) Run(ctx context.Context, policy Policy) Result {
	start := time.Now()
	tlogger.Debug("composition", c.name, "msg", "Composition started", "policy", policy)

	var res Result
	if c.mode == concurrent {
		res = c.runConcurrent(ctx, policy)
	} else {
		res = c.runSequential(ctx, policy)
	}
	res.Name = c.name

	tlogger.Debug("composition", c.name, "msg", "Composition finished", "errors", len(res.Errors), "took", time.Since(start).Round(time.Millisecond))
	return res
}

func (c *Composition) runSequential(ctx context.Context, policy Policy) Result {
	var res Result
	for i, m := range c.members {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			res.Skipped = append(res.Skipped, names(c.members[i:])...)
			break
		}
		r := m.Run(ctx, policy)
		res.merge(r)
		if !r.Success() && policy == AbortOnError {
			rest := names(c.members[i+1:])
			if len(rest) > 0 {
				tlogger.Warn("composition", c.name, "msg", "Aborting after failure", "failed", m.Name(), "skipped", len(rest))
			}
			res.Skipped = append(res.Skipped, rest...)
			break
		}
	}
	return res
}

func (c *Composition) runConcurrent(ctx context.Context, policy Policy) Result {
	results := make([]Result, len(c.members))

	var wg conc.WaitGroup
	for i, m := range c.members {
		i, m := i, m
		wg.Go(func() {
			results[i] = m.Run(ctx, policy)
		})
	}
	wg.Wait()

	var res Result
	for _, r := range results {
		res.merge(r)
	}
	return res
}

func names(rs []Runnable) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name()
	}
	return out
}
