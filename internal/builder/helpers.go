package builder

import (
	"fmt"
	"io"
	"strings"
)

// Walk calls fn for r and every runnable nested in it, parents first, with
// the nesting depth.
func Walk(r Runnable, fn func(r Runnable, depth int)) {
	walk(r, 0, fn)
}

func walk(r Runnable, depth int, fn func(Runnable, int)) {
	fn(r, depth)
	if c, ok := r.(*Composition); ok {
		for _, m := range c.members {
			walk(m, depth+1, fn)
		}
	}
}

// Describe prints the tree of r, one runnable per line.
func Describe(w io.Writer, r Runnable) {
	Walk(r, func(r Runnable, depth int) {
		kind := "task"
		switch v := r.(type) {
		case *Composition:
			kind = "series"
			if v.Concurrent() {
				kind = "parallel"
			}
		case *Signal:
			kind = "reload " + v.Kind.String()
		}
		fmt.Fprintf(w, "%s%s (%s)\n", strings.Repeat("  ", depth), r.Name(), kind)
	})
}
