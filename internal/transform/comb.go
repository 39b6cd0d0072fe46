package transform

import (
	"bytes"
	"strings"

	"github.com/toastate/frontpipe/internal/helpers"
)

// Comb reformats stylesheet sources: two space indentation following the
// block depth, no trailing white space, no blank line runs, no blank line
// right inside braces and a final newline.
type Comb struct{}

func (Comb) Name() string { return "comb" }

func (Comb) Apply(a *Asset) error {
	lines := strings.Split(string(helpers.NormalizeNewlines(a.Content)), "\n")

	var out []string
	depth := 0
	inComment := false
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			if len(out) == 0 || out[len(out)-1] == "" || strings.HasSuffix(out[len(out)-1], "{") {
				continue
			}
			out = append(out, "")
			continue
		}

		opens, closes, leading, comment := braceBalance(line, inComment)
		inComment = comment

		if leading > 0 && len(out) > 0 && out[len(out)-1] == "" {
			out = out[:len(out)-1]
		}

		indent := depth - leading
		if indent < 0 {
			indent = 0
		}
		out = append(out, strings.Repeat("  ", indent)+line)

		depth += opens - closes
		if depth < 0 {
			depth = 0
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	var buf bytes.Buffer
	for _, l := range out {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	a.Content = buf.Bytes()
	a.Map = nil
	return nil
}

// braceBalance counts braces outside strings, comments and parentheses, so
// unquoted urls keep their "//". leading is the number of closing braces the
// line starts with.
func braceBalance(line string, inComment bool) (opens, closes, leading int, comment bool) {
	var quote byte
	parens := 0
	counting := true
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inComment:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				inComment = false
				i++
			}
			continue
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '(':
			parens++
		case c == ')':
			if parens > 0 {
				parens--
			}
		case parens > 0:
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return opens, closes, leading, false
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			inComment = true
			i++
			continue
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			opens++
		case c == '}':
			closes++
			if counting {
				leading++
			}
		}
		if c != '}' && c != ' ' && c != '\t' {
			counting = false
		}
	}
	return opens, closes, leading, inComment
}
