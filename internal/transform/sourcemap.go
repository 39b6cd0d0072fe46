package transform

import (
	"errors"
	"strings"
)

// SourceMap is a version 3 source map.
type SourceMap struct {
	Version  int      `json:"version"`
	File     string   `json:"file"`
	Sources  []string `json:"sources"`
	Names    []string `json:"names"`
	Mappings string   `json:"mappings"`
}

// mapSegment holds absolute positions, all zero based.
type mapSegment struct {
	genCol    int
	hasSource bool
	source    int
	srcLine   int
	srcCol    int
}

func decodeMappings(mappings string) ([][]mapSegment, error) {
	var out [][]mapSegment
	source, line, col := 0, 0, 0
	for _, group := range strings.Split(mappings, ";") {
		var segs []mapSegment
		gen := 0
		for _, seg := range strings.Split(group, ",") {
			if seg == "" {
				continue
			}
			vals := make([]int, 0, 5)
			pos := 0
			for pos < len(seg) {
				var v int
				var err error
				v, pos, err = readVLQ(seg, pos)
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
			}
			gen += vals[0]
			s := mapSegment{genCol: gen}
			if len(vals) >= 4 {
				source += vals[1]
				line += vals[2]
				col += vals[3]
				s.hasSource = true
				s.source, s.srcLine, s.srcCol = source, line, col
			}
			segs = append(segs, s)
		}
		out = append(out, segs)
	}
	return out, nil
}

// encodeMappings drops names, none of the transforms produce them.
func encodeMappings(lines [][]mapSegment) string {
	var sb strings.Builder
	prevSource, prevLine, prevCol := 0, 0, 0
	for i, segs := range lines {
		if i > 0 {
			sb.WriteByte(';')
		}
		prevGen := 0
		for j, s := range segs {
			if j > 0 {
				sb.WriteByte(',')
			}
			writeVLQ(&sb, s.genCol-prevGen)
			prevGen = s.genCol
			if !s.hasSource {
				continue
			}
			writeVLQ(&sb, s.source-prevSource)
			writeVLQ(&sb, s.srcLine-prevLine)
			writeVLQ(&sb, s.srcCol-prevCol)
			prevSource, prevLine, prevCol = s.source, s.srcLine, s.srcCol
		}
	}
	return sb.String()
}

// lineMove records that generated line From, starting at column FromCol,
// now starts at column ToCol of line To.
type lineMove struct {
	From, FromCol int
	To, ToCol     int
}

// remap rewrites the mappings after whole lines were moved. Lines without a
// move lose their segments.
func (m *SourceMap) remap(moves []lineMove, total int) error {
	lines, err := decodeMappings(m.Mappings)
	if err != nil {
		return err
	}
	out := make([][]mapSegment, total)
	for _, mv := range moves {
		if mv.From < 0 || mv.From >= len(lines) || mv.To < 0 || mv.To >= total {
			continue
		}
		for _, s := range lines[mv.From] {
			if s.genCol < mv.FromCol {
				continue
			}
			s.genCol += mv.ToCol - mv.FromCol
			out[mv.To] = append(out[mv.To], s)
		}
	}
	m.Mappings = encodeMappings(out)
	return nil
}

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func writeVLQ(sb *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		sb.WriteByte(base64Chars[digit])
		if u == 0 {
			return
		}
	}
}

func readVLQ(s string, pos int) (int, int, error) {
	shift, u := 0, 0
	for {
		if pos >= len(s) {
			return 0, pos, errors.New("truncated vlq")
		}
		digit := strings.IndexByte(base64Chars, s[pos])
		if digit < 0 {
			return 0, pos, errors.New("invalid vlq character")
		}
		pos++
		u |= (digit & 31) << shift
		shift += 5
		if digit&32 == 0 {
			break
		}
	}
	if u&1 == 1 {
		return -(u >> 1), pos, nil
	}
	return u >> 1, pos, nil
}

// Origin is the source position a generated line maps to.
type Origin struct {
	Source string
	Line   int
}

// Lines decodes the mappings and returns, for every generated line, the
// origin of its first segment. Lines without a segment have an empty Source.
func (m *SourceMap) Lines() ([]Origin, error) {
	lines, err := decodeMappings(m.Mappings)
	if err != nil {
		return nil, err
	}
	out := make([]Origin, len(lines))
	for i, segs := range lines {
		for _, s := range segs {
			if s.hasSource && s.source >= 0 && s.source < len(m.Sources) {
				out[i] = Origin{Source: m.Sources[s.source], Line: s.srcLine + 1}
				break
			}
		}
	}
	return out, nil
}
