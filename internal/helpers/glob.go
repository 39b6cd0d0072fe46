package helpers

import (
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is a file selected by a pattern list. Path is relative to the root
// the patterns were expanded against, Rel is relative to the static prefix
// of the pattern that selected it.
type Match struct {
	Path string
	Rel  string
}

func cleanPattern(p string) string {
	p = strings.TrimSpace(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return "."
	}
	return p
}

func splitPatterns(patterns []string) (include, exclude []string) {
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			exclude = append(exclude, cleanPattern(p[1:]))
		} else {
			include = append(include, cleanPattern(p))
		}
	}
	return include, exclude
}

// MatchAny reports whether the slash separated name is selected by the
// patterns: matched by an include pattern and by no "!" pattern.
func MatchAny(patterns []string, name string) bool {
	name = cleanPattern(name)
	include, exclude := splitPatterns(patterns)
	for _, e := range exclude {
		if ok, _ := doublestar.Match(e, name); ok {
			return false
		}
	}
	for _, i := range include {
		if ok, _ := doublestar.Match(i, name); ok {
			return true
		}
	}
	return false
}

// Expand lists the regular files under root selected by patterns, sorted and
// without duplicates.
func Expand(root string, patterns []string) ([]Match, error) {
	fsys := os.DirFS(root)
	include, exclude := splitPatterns(patterns)

	seen := map[string]bool{}
	var out []Match
	for _, p := range include {
		base, _ := doublestar.SplitPattern(p)
		names, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if seen[n] || excluded(exclude, n) {
				continue
			}
			seen[n] = true
			rel := n
			if base != "." && base != "" {
				rel = strings.TrimPrefix(n, base+"/")
			}
			out = append(out, Match{Path: n, Rel: rel})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func excluded(exclude []string, name string) bool {
	for _, e := range exclude {
		if ok, _ := doublestar.Match(e, name); ok {
			return true
		}
	}
	return false
}
