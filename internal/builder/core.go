package builder

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/toastate/frontpipe/internal/reload"
)

// Policy decides what a sequential composition does after a member failed.
type Policy int

const (
	// AbortOnError skips the remaining members. Used for ad-hoc runs.
	AbortOnError Policy = iota
	// ContinueOnError runs the remaining members anyway. Used under watch so
	// one bad edit never stops a dev session.
	ContinueOnError
)

func (p Policy) String() string {
	if p == ContinueOnError {
		return "continue"
	}
	return "abort"
}

// Runnable is a task or a composition of tasks.
type Runnable interface {
	Name() string
	Run(ctx context.Context, policy Policy) Result
}

// Result is the outcome of a run. Errors holds one entry per failure, in
// member order.
type Result struct {
	Name    string
	Errors  []error
	Written []string
	Skipped []string
	Reload  reload.Kind
}

func (r Result) Success() bool {
	return len(r.Errors) == 0
}

// Err combines every failure into one error, nil on success.
func (r Result) Err() error {
	return multierr.Combine(r.Errors...)
}

func (r *Result) merge(o Result) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Written = append(r.Written, o.Written...)
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Reload = reload.Max(r.Reload, o.Reload)
}

// FileSystemError is a failed read or write of a task file.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// Signal requests a reload without doing any work.
type Signal struct {
	Label string
	Kind  reload.Kind
}

func (s *Signal) Name() string {
	if s.Label == "" {
		return "sync"
	}
	return s.Label
}

func (s *Signal) Run(ctx context.Context, _ Policy) Result {
	return Result{Name: s.Name(), Reload: s.Kind}
}
