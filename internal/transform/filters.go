package transform

import (
	"bytes"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type cssToken struct {
	tt   css.TokenType
	data []byte
	// zero based position of the first byte
	line, col int
}

func lexCSS(file string, in []byte) ([]cssToken, error) {
	l := css.NewLexer(parse.NewInputBytes(append([]byte(nil), in...)))
	var out []cssToken
	line, col := 0, 0
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && err != io.EOF {
				return nil, &CompileError{File: file, Line: line + 1, Msg: err.Error()}
			}
			return out, nil
		}
		out = append(out, cssToken{tt: tt, data: append([]byte(nil), data...), line: line, col: col})
		for _, c := range data {
			if c == '\n' {
				line++
				col = 0
			} else {
				col++
			}
		}
	}
}

// DiscardComments removes css comments. Comments starting with "/*!" are
// kept when KeepImportant is set. The newlines a comment spanned are kept so
// a source map stays valid.
type DiscardComments struct {
	KeepImportant bool
}

func (d DiscardComments) Name() string { return "discard-comments" }

func (d DiscardComments) Apply(a *Asset) error {
	tokens, err := lexCSS(a.Source, a.Content)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	for _, t := range tokens {
		if t.tt == css.CommentToken && !(d.KeepImportant && bytes.HasPrefix(t.data, []byte("/*!"))) {
			out.Write(bytes.Repeat([]byte{'\n'}, bytes.Count(t.data, []byte{'\n'})))
			continue
		}
		out.Write(t.data)
	}
	a.Content = out.Bytes()
	return nil
}

// RewriteURLs applies a regexp replacement, by default pointing image urls
// at the images folder next to the css folder.
type RewriteURLs struct {
	Search  *regexp.Regexp
	Replace string
}

func NewRewriteURLs(search, replace string) (*RewriteURLs, error) {
	re, err := regexp.Compile(search)
	if err != nil {
		return nil, err
	}
	return &RewriteURLs{Search: re, Replace: replace}, nil
}

func (r *RewriteURLs) Name() string { return "rewrite-urls" }

func (r *RewriteURLs) Apply(a *Asset) error {
	a.Content = r.Search.ReplaceAll(a.Content, []byte(r.Replace))
	return nil
}

// PackMediaQueries moves every top-level @media block to the end of the
// stylesheet, merging blocks with the same query. Queries are ordered mobile
// first: min-width ascending, then max-width descending, then the others in
// the order they first appeared. A source map follows the moved lines.
type PackMediaQueries struct{}

func (PackMediaQueries) Name() string { return "pack-media-queries" }

type mediaGroup struct {
	query  string
	at     cssToken
	bodies [][]cssToken
	first  int
}

// packWriter writes css and records, for every output line, the input line
// it was copied from.
type packWriter struct {
	buf       bytes.Buffer
	line, col int
	mapped    bool
	moves     []lineMove
}

func (w *packWriter) mark(t cssToken) {
	if w.mapped || t.tt == css.WhitespaceToken {
		return
	}
	w.moves = append(w.moves, lineMove{From: t.line, FromCol: t.col, To: w.line, ToCol: w.col})
	w.mapped = true
}

func (w *packWriter) write(b []byte) {
	w.buf.Write(b)
	for _, c := range b {
		if c == '\n' {
			w.line++
			w.col = 0
			w.mapped = false
		} else {
			w.col++
		}
	}
}

func (w *packWriter) token(t cssToken) {
	w.mark(t)
	w.write(t.data)
}

func trimWhitespace(tokens []cssToken) []cssToken {
	for len(tokens) > 0 && tokens[0].tt == css.WhitespaceToken {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].tt == css.WhitespaceToken {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func (PackMediaQueries) Apply(a *Asset) error {
	tokens, err := lexCSS(a.Source, a.Content)
	if err != nil {
		return err
	}

	var rest []cssToken
	groups := map[string]*mediaGroup{}
	var order []*mediaGroup

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.tt != css.AtKeywordToken || !strings.EqualFold(string(t.data), "@media") {
			rest = append(rest, t)
			if t.tt == css.LeftBraceToken {
				// skip nested content so only top-level blocks are moved
				end := matchBrace(tokens, i)
				rest = append(rest, tokens[i+1:end]...)
				i = end - 1
			}
			continue
		}

		var query bytes.Buffer
		j := i + 1
		for ; j < len(tokens) && tokens[j].tt != css.LeftBraceToken && tokens[j].tt != css.SemicolonToken; j++ {
			query.Write(tokens[j].data)
		}
		if j >= len(tokens) || tokens[j].tt != css.LeftBraceToken {
			rest = append(rest, t)
			continue
		}
		end := matchBrace(tokens, j)

		q := strings.Join(strings.Fields(query.String()), " ")
		g, ok := groups[q]
		if !ok {
			g = &mediaGroup{query: q, at: t, first: len(order)}
			groups[q] = g
			order = append(order, g)
		}
		if body := trimWhitespace(tokens[j+1 : end]); len(body) > 0 {
			g.bodies = append(g.bodies, body)
		}

		i = end
		// drop the white space that separated the block from what follows
		for i+1 < len(tokens) && tokens[i+1].tt == css.WhitespaceToken {
			i++
		}
	}

	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool {
		ci, vi := mediaRank(order[i].query)
		cj, vj := mediaRank(order[j].query)
		if ci != cj {
			return ci < cj
		}
		if ci == 1 && vi != vj {
			return vi > vj
		}
		if ci == 0 && vi != vj {
			return vi < vj
		}
		return order[i].first < order[j].first
	})

	w := &packWriter{}
	for len(rest) > 0 && rest[len(rest)-1].tt == css.WhitespaceToken {
		rest = rest[:len(rest)-1]
	}
	for _, t := range rest {
		w.token(t)
	}
	for _, g := range order {
		if len(g.bodies) == 0 {
			continue
		}
		if w.buf.Len() > 0 {
			w.write([]byte("\n\n"))
		}
		w.mark(g.at)
		w.write([]byte("@media " + g.query + " {\n  "))
		for k, body := range g.bodies {
			if k > 0 {
				w.write([]byte("\n\n  "))
			}
			for _, t := range body {
				w.token(t)
			}
		}
		w.write([]byte("\n}"))
	}
	w.write([]byte{'\n'})

	a.Content = w.buf.Bytes()
	if a.Map != nil {
		if err := a.Map.remap(w.moves, w.line+1); err != nil {
			return &CompileError{File: a.Source, Msg: "invalid source map: " + err.Error()}
		}
	}
	return nil
}

// matchBrace returns the index of the brace closing the one at open, or
// len(tokens) when it is never closed.
func matchBrace(tokens []cssToken, open int) int {
	depth := 0
	for k := open; k < len(tokens); k++ {
		switch tokens[k].tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return len(tokens)
}

var minWidthRegexp = regexp.MustCompile(`min-width\s*:\s*([\d.]+)(px|em|rem)?`)
var maxWidthRegexp = regexp.MustCompile(`max-width\s*:\s*([\d.]+)(px|em|rem)?`)

// mediaRank classifies a query: 0 min-width, 1 max-width, 2 anything else.
func mediaRank(q string) (int, float64) {
	if m := minWidthRegexp.FindStringSubmatch(q); m != nil {
		return 0, toPx(m[1], m[2])
	}
	if m := maxWidthRegexp.FindStringSubmatch(q); m != nil {
		return 1, toPx(m[1], m[2])
	}
	return 2, 0
}

func toPx(num, unit string) float64 {
	v, _ := strconv.ParseFloat(num, 64)
	if unit == "em" || unit == "rem" {
		v *= 16
	}
	return v
}
