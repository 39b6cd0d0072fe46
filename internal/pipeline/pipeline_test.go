package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastate/frontpipe/internal/builder"
	"github.com/toastate/frontpipe/internal/reload"
	"github.com/toastate/frontpipe/internal/transform"
	"github.com/toastate/frontpipe/internal/watcher"
	"github.com/toastate/frontpipe/pkg/config"
)

func project(t *testing.T, files map[string]string) *config.Configuration {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	cfg := config.Default()
	cfg.Root = root
	require.NoError(t, cfg.Validate())
	return cfg
}

var stylesheets = map[string]string{
	"src/scss/style.scss":      "@import \"variables\";\n@import \"header\";\n\nbody { color: $text; }\n",
	"src/scss/_variables.scss": "$text: #222;\n$logo: \"../../images/logo.png\";\n",
	"src/scss/_header.scss": `// header
.header {
  background: url($logo);
  @media (min-width: 768px) { height: 80px; }
  .title { font-weight: bold; }
}
`,
}

func exists(t *testing.T, p string) bool {
	t.Helper()
	_, err := os.Stat(p)
	if err == nil {
		return true
	}
	require.True(t, os.IsNotExist(err), "%v", err)
	return false
}

func TestParseTaskID(t *testing.T) {
	for _, id := range TaskIDs {
		got, err := ParseTaskID(string(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := ParseTaskID("deploy")
	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "task", ce.Key)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		flag string
		mode Mode
		ok   bool
	}{
		{"", ModeDefault, true},
		{"--dev", ModeDev, true},
		{"--css", ModeCSS, true},
		{"dev", ModeDev, true},
		{"--prod", ModeDefault, false},
	}
	for _, tt := range tests {
		mode, ok := ParseMode(tt.flag)
		assert.Equal(t, tt.mode, mode, tt.flag)
		assert.Equal(t, tt.ok, ok, tt.flag)
	}
}

func TestNewRejectsIncompleteConfiguration(t *testing.T) {
	cfg := config.Default()
	cfg.Paths = config.NewPathTable(map[config.Role][]string{config.ScssFolder: {"src/scss"}})

	_, err := New(cfg)
	var ce *config.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestLookup(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	for _, id := range []TaskID{TaskComb, TaskScss, TaskDev, TaskMin, TaskPug, TaskBuild} {
		r, err := p.Lookup(id)
		require.NoError(t, err, id)
		assert.NotNil(t, r)
	}
	_, err = p.Lookup(TaskWatch)
	assert.Error(t, err)

	scss, _ := p.Lookup(TaskScss)
	comb, _ := p.Lookup(TaskComb)
	assert.Same(t, scss, comb)

	build, _ := p.Lookup(TaskBuild)
	assert.True(t, build.(*builder.Composition).Concurrent())
}

// The default composition writes the plain and the minified
// stylesheet and no source map.
func TestScssDefaultComposition(t *testing.T) {
	cfg := project(t, stylesheets)
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), TaskScss, builder.AbortOnError)
	require.NoError(t, err)
	require.True(t, res.Success(), "%v", res.Err())
	assert.Equal(t, reload.CSS, res.Reload)

	css := filepath.Join(cfg.Root, "assets", "css")
	plain, err := os.ReadFile(filepath.Join(css, "style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(plain), "body {\n  color: #222;\n}")
	assert.Contains(t, string(plain), "url(../images/logo.png)")
	assert.NotContains(t, string(plain), "// header")
	// media queries are packed at the end
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(plain)), "}\n}"))
	assert.Greater(t, strings.Index(string(plain), "@media"), strings.Index(string(plain), ".header .title"))

	minified, err := os.ReadFile(filepath.Join(css, "style.min.css"))
	require.NoError(t, err)
	assert.NotContains(t, string(minified), "\n")
	assert.Contains(t, string(minified), "body{color:#222}")

	assert.False(t, exists(t, filepath.Join(css, "style.css.map")))
	assert.False(t, exists(t, filepath.Join(css, "style.min.css.map")))

	// comb reformatted the partials in place
	header, err := os.ReadFile(filepath.Join(cfg.Root, "src", "scss", "_header.scss"))
	require.NoError(t, err)
	assert.Contains(t, string(header), "\n  .title { font-weight: bold; }\n")
}

// The dev composition writes the stylesheet with its source map
// and no minified file.
func TestScssDevComposition(t *testing.T) {
	cfg := project(t, stylesheets)
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), TaskDev, builder.AbortOnError)
	require.NoError(t, err)
	require.True(t, res.Success(), "%v", res.Err())

	css := filepath.Join(cfg.Root, "assets", "css")
	plain, err := os.ReadFile(filepath.Join(css, "style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(plain), "/*# sourceMappingURL=style.css.map */")

	// media queries are packed here too and the map follows them
	assert.Greater(t, strings.Index(string(plain), "@media"), strings.Index(string(plain), ".header .title"))

	m, err := os.ReadFile(filepath.Join(css, "style.css.map"))
	require.NoError(t, err)
	assert.Contains(t, string(m), "../../src/scss/_header.scss")

	var sm transform.SourceMap
	require.NoError(t, json.Unmarshal(m, &sm))
	lines, err := sm.Lines()
	require.NoError(t, err)
	for i, l := range strings.Split(string(plain), "\n") {
		if strings.Contains(l, "height: 80px") {
			require.Less(t, i, len(lines))
			assert.Equal(t, transform.Origin{Source: "../../src/scss/_header.scss", Line: 4}, lines[i])
		}
	}

	assert.False(t, exists(t, filepath.Join(css, "style.min.css")))
}

func TestPugComposition(t *testing.T) {
	cfg := project(t, map[string]string{
		"src/templates/index.tmpl":        "<html><!-- #import partials/nav.tmpl --><p>{{.title}}</p></html>",
		"src/templates/partials/nav.tmpl": "<nav></nav>",
	})
	cfg.Vars = map[string]interface{}{"title": "Hello"}
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), TaskPug, builder.AbortOnError)
	require.NoError(t, err)
	require.True(t, res.Success(), "%v", res.Err())
	assert.Equal(t, reload.Page, res.Reload)

	b, err := os.ReadFile(filepath.Join(cfg.Root, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html><nav></nav><p>Hello</p></html>", string(b))
}

func TestBuildComposition(t *testing.T) {
	files := map[string]string{"src/templates/index.tmpl": "<p></p>"}
	for k, v := range stylesheets {
		files[k] = v
	}
	cfg := project(t, files)
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), TaskBuild, builder.AbortOnError)
	require.NoError(t, err)
	require.True(t, res.Success(), "%v", res.Err())
	assert.Equal(t, reload.Page, res.Reload)
	for _, f := range []string{"assets/css/style.css", "assets/css/style.min.css", "index.html"} {
		assert.True(t, exists(t, filepath.Join(cfg.Root, filepath.FromSlash(f))), f)
	}
}

func TestAdHocRunAbortsOnCompileError(t *testing.T) {
	cfg := project(t, map[string]string{
		"src/scss/style.scss": ".a { color: $missing; }",
	})
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), TaskScss, builder.AbortOnError)
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, []string{"compileScssMin"}, res.Skipped)
}

type reloads struct {
	mu    sync.Mutex
	kinds []reload.Kind
}

func (r *reloads) Reload(k reload.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, k)
}

// A syntax error under watch is logged, the dispatcher keeps
// going and the previous output stays as it was.
func TestWatchCompileErrorKeepsOutput(t *testing.T) {
	cfg := project(t, stylesheets)
	p, err := New(cfg)
	require.NoError(t, err)

	rl := &reloads{}
	var results []builder.Result
	var mu sync.Mutex
	d := watcher.New(cfg.Root, rl, watcher.Options{
		Policy: builder.ContinueOnError,
		OnResult: func(rule string, res builder.Result) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
		},
	})
	for _, r := range p.WatchRules(ModeDefault) {
		require.NoError(t, d.Register(r))
	}

	require.True(t, d.Dispatch("src/scss/_header.scss"))
	d.Wait()

	out := filepath.Join(cfg.Root, "assets", "css", "style.css")
	good, err := os.ReadFile(out)
	require.NoError(t, err)

	broken := filepath.Join(cfg.Root, "src", "scss", "_header.scss")
	require.NoError(t, os.WriteFile(broken, []byte(".header { color: red;"), 0644))

	require.True(t, d.Dispatch("src/scss/_header.scss"))
	d.Wait()

	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(good), string(after))

	mu.Lock()
	require.Len(t, results, 2)
	assert.True(t, results[0].Success())
	assert.False(t, results[1].Success())
	// both members ran despite the failure
	assert.Len(t, results[1].Errors, 2)
	mu.Unlock()

	// the dispatcher is still usable
	require.NoError(t, os.WriteFile(broken, []byte(".header { color: red; }"), 0644))
	require.True(t, d.Dispatch("src/scss/_header.scss"))
	d.Wait()
	after, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(after), ".header {\n  color: red;\n}")

	rl.mu.Lock()
	assert.Equal(t, []reload.Kind{reload.CSS, reload.CSS}, rl.kinds)
	rl.mu.Unlock()
}

func TestWatchRules(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	names := func(rules []watcher.Rule) []string {
		var out []string
		for _, r := range rules {
			out = append(out, r.Name+":"+r.Run.Name())
		}
		return out
	}

	assert.Equal(t, []string{"scss:scss", "html:sync", "templates:pug", "js:sync"}, names(p.WatchRules(ModeDefault)))
	assert.Equal(t, []string{"scss:scss-dev", "html:sync", "templates:pug", "js:sync"}, names(p.WatchRules(ModeDev)))
	assert.Equal(t, []string{"css:sync", "html:sync", "templates:pug", "js:sync"}, names(p.WatchRules(ModeCSS)))

	css := p.WatchRules(ModeCSS)[0]
	res := css.Run.Run(context.Background(), builder.ContinueOnError)
	assert.Equal(t, reload.CSS, res.Reload)
	assert.Equal(t, []string{"assets/css/*.css"}, css.Patterns)
}

func TestUnknownModeFallsBackToDefault(t *testing.T) {
	p, err := New(config.Default())
	require.NoError(t, err)

	describe := func(rules []watcher.Rule) string {
		var b strings.Builder
		for _, r := range rules {
			b.WriteString(r.Name + " " + strings.Join(r.Patterns, ",") + " ")
			builder.Describe(&b, r.Run)
		}
		return b.String()
	}
	want := describe(p.WatchRules(ModeDefault))

	properties := gopter.NewProperties(nil)
	properties.Property("unrecognised flags select the default rules", prop.ForAll(
		func(flag string) bool {
			mode, ok := ParseMode("--" + flag)
			if ok {
				return true
			}
			return mode == ModeDefault && describe(p.WatchRules(mode)) == want
		},
		gen.AlphaString(),
	))
	properties.TestingRun(t)
}
