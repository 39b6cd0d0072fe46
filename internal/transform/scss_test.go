package transform

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileString(t *testing.T, dir, src string, withMap bool) (*Asset, error) {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	a := &Asset{Path: "style.scss", Source: filepath.Join(dir, "style.scss"), Content: []byte(src)}
	err := (&Stylesheet{SourceMap: withMap}).Apply(a)
	return a, err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

var (
	spaces      = regexp.MustCompile(`\s+`)
	punctSpaces = regexp.MustCompile(`\s*([{};:,])\s*`)
)

// squash drops the white space the output style adds.
func squash(css string) string {
	s := spaces.ReplaceAllString(strings.TrimSpace(css), " ")
	return punctSpaces.ReplaceAllString(s, "$1")
}

func TestStylesheet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "variables and nesting",
			in: `$primary: #333;
$pad: 10px !default;
$pad: 20px !default;

.nav {
  color: $primary;
  a {
    padding: $pad;
    &:hover { color: red; }
  }
}`,
			want: ".nav{color:#333;}.nav a{padding:10px;}.nav a:hover{color:red;}",
		},
		{
			name: "arithmetic",
			in:   "$g: 10px;\n.a { width: $g * 2; }",
			want: ".a{width:20px;}",
		},
		{
			name: "color functions",
			in:   "$c: #fff;\n.a { color: darken($c, 10%); }",
			want: ".a{color:#e6e6e6;}",
		},
		{
			name: "placeholders are dropped",
			in:   "%ph { color: red; }\n.b { @extend %ph; }",
			want: ".b{color:red;}",
		},
		{
			name: "mixin with default and keyword arguments",
			in: `@mixin box($v, $h: 2px) { padding: $v $h; }
.b { @include box(1px); }
.c { @include box($h: 3px, $v: 4px); }`,
			want: ".b{padding:1px 2px;}.c{padding:4px 3px;}",
		},
		{
			name: "control directives",
			in:   "@each $n in a, b { .#{$n} { x: $n; } }",
			want: ".a{x:a;}.b{x:b;}",
		},
		{
			name: "media bubbling",
			in:   ".c { color: blue; @media (min-width: 10px) { color: red; } }",
			want: ".c{color:blue;}@media (min-width:10px){.c{color:red;}}",
		},
		{
			name: "comments",
			in:   "/* kept */\n// dropped\n.a { color: red; // dropped too\n}",
			want: "/* kept */ .a{color:red;}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := compileString(t, "", tt.in, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, squash(string(a.Content)))
			assert.Equal(t, "style.css", a.Path)
			assert.Nil(t, a.Map)
		})
	}
}

func TestStylesheetIndentedSyntax(t *testing.T) {
	dir := t.TempDir()
	a := &Asset{Path: "style.sass", Source: filepath.Join(dir, "style.sass"), Content: []byte("$c: blue\n.a\n  color: $c\n")}
	require.NoError(t, (&Stylesheet{}).Apply(a))
	assert.Equal(t, ".a{color:blue;}", squash(string(a.Content)))
	assert.Equal(t, "style.css", a.Path)
}

func TestStylesheetImports(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"_variables.scss":      "$c: green;",
		"parts/_header.scss":   ".header { color: $c; }",
		"mixins/_index.scss":   "@mixin big { font-size: 2em; }",
		"elsewhere/_load.scss": ".loaded { a: b; }",
	})

	src := `@import "variables", "parts/header";
@import "mixins";
@import "load";
.d { @include big; }`

	a := &Asset{Path: "style.scss", Source: filepath.Join(dir, "style.scss"), Content: []byte(src)}
	err := (&Stylesheet{LoadPaths: []string{filepath.Join(dir, "elsewhere")}}).Apply(a)
	require.NoError(t, err)
	assert.Equal(t, ".header{color:green;}.loaded{a:b;}.d{font-size:2em;}", squash(string(a.Content)))
}

func TestStylesheetModuleRulesRejected(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"lib/_once.scss": ".once { a: b; }"})

	_, err := compileString(t, dir, "@use \"lib/once\";\n.a { b: c; }", false)
	var ce *CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)

	err = rejectModuleRules("style.css", []byte("@forward \"x\";\n.a { b: c; }"))
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, ce.Msg, "@forward")
	assert.NoError(t, rejectModuleRules("style.css", []byte("@import url(a.css);\n@media print { .a { b: c; } }")))
}

func TestStylesheetImportLoop(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"_a.scss": `@import "b";`,
		"_b.scss": `@import "a";`,
	})

	_, err := compileString(t, dir, `@import "a";`, false)
	var ce *CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, ce.Msg, "loop")
}

func TestStylesheetErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		line int
		msg  string
	}{
		{"undefined variable", ".e {\n  color: $nope;\n}", 2, `Undefined variable: "$nope".`},
		{"unclosed block", ".e {\n  color: red;", 0, "Invalid CSS"},
		{"missing import", `@import "missing";`, 1, "File to import not found or unreadable: missing"},
		{"undefined mixin", ".a {\n  @include nope;\n}", 2, "nope"},
		{"error directive", "\n@error \"broken\";", 2, "broken"},
		{"incompatible units", ".a { width: 1px + 1em; }", 1, "Incompatible units"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := compileString(t, dir, tt.in, false)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Contains(t, ce.Msg, tt.msg)
			assert.Equal(t, filepath.Join(dir, "style.scss"), ce.File)
			if tt.line > 0 {
				assert.Equal(t, tt.line, ce.Line)
			}
		})
	}
}

func TestStylesheetErrorInPartial(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"_broken.scss": "\n.a { color: $nope; }"})

	_, err := compileString(t, dir, `@import "broken";`, false)
	var ce *CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, filepath.Join(dir, "_broken.scss"), ce.File)
	assert.Equal(t, 2, ce.Line)
}

func TestStylesheetSourceMap(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"_part.scss": "\n.part {\n  a: b;\n}",
	})

	src := "@import \"part\";\n\n.main {\n  color: red;\n}"
	a, err := compileString(t, dir, src, true)
	require.NoError(t, err)
	require.NotNil(t, a.Map)
	assert.Equal(t, 3, a.Map.Version)
	assert.Equal(t, "style.css", a.Map.File)
	assert.NotContains(t, string(a.Content), "sourceMappingURL")

	part := filepath.Join(dir, "_part.scss")
	main := filepath.Join(dir, "style.scss")
	assert.ElementsMatch(t, []string{part, main}, a.Map.Sources)

	lines, err := a.Map.Lines()
	require.NoError(t, err)

	out := strings.Split(string(a.Content), "\n")
	found := map[string]Origin{}
	for i, l := range out {
		if i < len(lines) && strings.HasSuffix(l, "{") {
			found[strings.TrimSpace(strings.TrimSuffix(l, "{"))] = lines[i]
		}
	}
	assert.Equal(t, Origin{Source: part, Line: 2}, found[".part"])
	assert.Equal(t, Origin{Source: main, Line: 3}, found[".main"])
}

func TestVLQ(t *testing.T) {
	for _, v := range []int{0, 1, -1, 15, 16, -16, 31, 32, 1000, -123456} {
		var sb strings.Builder
		writeVLQ(&sb, v)
		got, pos, err := readVLQ(sb.String(), 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(sb.String()), pos)
	}
}
