package config

import (
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Role names a logical location of the project: a folder, a root file or a
// set of files selected with glob patterns.
type Role string

const (
	ScssFolder        Role = "scss_folder"
	ScssAllFiles      Role = "scss_all_files"
	ScssRootFile      Role = "scss_root_file"
	TemplatesFolder   Role = "templates_folder"
	TemplatesAllFiles Role = "templates_all_files"
	TemplatesRootFile Role = "templates_root_file"
	CSSFolder         Role = "css_folder"
	CSSAllFiles       Role = "css_all_files"
	CSSRootFile       Role = "css_root_file"
	HTMLFolder        Role = "html_folder"
	HTMLAllFiles      Role = "html_all_files"
	JSFolder          Role = "js_folder"
	JSAllFiles        Role = "js_all_files"
	ImagesFolder      Role = "images_folder"
)

// Roles lists every known role.
var Roles = []Role{
	ScssFolder, ScssAllFiles, ScssRootFile,
	TemplatesFolder, TemplatesAllFiles, TemplatesRootFile,
	CSSFolder, CSSAllFiles, CSSRootFile,
	HTMLFolder, HTMLAllFiles,
	JSFolder, JSAllFiles,
	ImagesFolder,
}

func knownRole(r Role) bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// Patterns is one or more slash separated patterns. A leading "!" excludes.
// It decodes from either a single string or a list.
type Patterns []string

func (p *Patterns) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*p = Patterns{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*p = many
	return nil
}

func (p *Patterns) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var one string
		if err := value.Decode(&one); err != nil {
			return err
		}
		*p = Patterns{one}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*p = many
	return nil
}

// PathTable maps roles to patterns. It is filled once while loading the
// configuration and only read afterwards.
type PathTable struct {
	m map[Role]Patterns
}

func NewPathTable(m map[Role][]string) PathTable {
	t := PathTable{m: make(map[Role]Patterns, len(m))}
	for k, v := range m {
		t.m[k] = append(Patterns(nil), v...)
	}
	return t
}

func DefaultPathTable() PathTable {
	return NewPathTable(map[Role][]string{
		ScssFolder:        {"src/scss"},
		ScssAllFiles:      {"src/scss/**/*.scss", "!**/_mixins-media.scss"},
		ScssRootFile:      {"src/scss/style.scss"},
		TemplatesFolder:   {"src/templates"},
		TemplatesAllFiles: {"src/templates/**/*.tmpl"},
		TemplatesRootFile: {"src/templates/index.tmpl"},
		CSSFolder:         {"assets/css"},
		CSSAllFiles:       {"assets/css/*.css"},
		CSSRootFile:       {"assets/css/style.css"},
		HTMLFolder:        {"."},
		HTMLAllFiles:      {"*.html"},
		JSFolder:          {"assets/js"},
		JSAllFiles:        {"assets/js/**/*.js"},
		ImagesFolder:      {"assets/images"},
	})
}

// Get returns a copy of the patterns bound to r.
func (t PathTable) Get(r Role) []string {
	return append([]string(nil), t.m[r]...)
}

// Path returns the first pattern bound to r, for roles naming a single
// folder or file.
func (t PathTable) Path(r Role) string {
	if len(t.m[r]) == 0 {
		return ""
	}
	return t.m[r][0]
}

// Require reports every role that is missing or holds an empty pattern.
func (t PathTable) Require(roles ...Role) error {
	var err error
	for _, r := range roles {
		v, ok := t.m[r]
		if !ok || len(v) == 0 {
			err = multierr.Append(err, &ConfigurationError{Key: string(r), Reason: "path role is not configured"})
			continue
		}
		for _, p := range v {
			if strings.TrimSpace(strings.TrimPrefix(p, "!")) == "" {
				err = multierr.Append(err, &ConfigurationError{Key: string(r), Reason: "empty pattern"})
				break
			}
		}
	}
	return err
}

func (t *PathTable) set(key string, p Patterns) error {
	r := Role(key)
	if !knownRole(r) {
		return &ConfigurationError{Key: key, Reason: "unknown path role"}
	}
	if t.m == nil {
		t.m = make(map[Role]Patterns)
	}
	t.m[r] = p
	return nil
}

// UnmarshalJSON overrides the roles present in b and keeps the others.
func (t *PathTable) UnmarshalJSON(b []byte) error {
	raw := map[string]Patterns{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	return t.merge(raw)
}

func (t *PathTable) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]Patterns{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return t.merge(raw)
}

func (t *PathTable) merge(raw map[string]Patterns) error {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, k := range keys {
		err = multierr.Append(err, t.set(k, raw[k]))
	}
	return err
}

func (t PathTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.m)
}
