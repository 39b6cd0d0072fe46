package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "frontpipe.json"

type Configuration struct {
	Root      string                 `json:"root,omitempty" yaml:"root,omitempty"`
	Paths     PathTable              `json:"paths,omitempty" yaml:"paths,omitempty"`
	Serve     ServeConfiguration     `json:"serve_config,omitempty" yaml:"serve_config,omitempty"`
	Watch     WatchConfiguration     `json:"watch,omitempty" yaml:"watch,omitempty"`
	Images    ImageConfiguration     `json:"images,omitempty" yaml:"images,omitempty"`
	Scaffold  ScaffoldConfiguration  `json:"scaffold,omitempty" yaml:"scaffold,omitempty"`
	MinSuffix string                 `json:"min_suffix,omitempty" yaml:"min_suffix,omitempty"`
	Vars      map[string]interface{} `json:"vars,omitempty" yaml:"vars,omitempty"`
}

type ServeConfiguration struct {
	Redirect404 string `json:"redirect_404" yaml:"redirect_404"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
}

type WatchConfiguration struct {
	DebounceMS int `json:"debounce_ms" yaml:"debounce_ms"`
}

// ImageConfiguration drives the url rewrite applied to compiled stylesheets.
type ImageConfiguration struct {
	Search  string `json:"search" yaml:"search"`
	Replace string `json:"replace" yaml:"replace"`
}

type ScaffoldConfiguration struct {
	ScssPartials []string `json:"scss_partials" yaml:"scss_partials"`
}

// Default returns a fresh configuration holding the built-in values.
func Default() *Configuration {
	return &Configuration{
		Root:  ".",
		Paths: DefaultPathTable(),
		Serve: ServeConfiguration{
			Host: "localhost",
			Port: 3000,
		},
		Watch: WatchConfiguration{
			DebounceMS: 100,
		},
		Images: ImageConfiguration{
			Search:  `url\(['"]?.*\/images\/(.*?)\.(png|jpg|gif|webp|svg)['"]?\)`,
			Replace: `url(../images/$1.$2)`,
		},
		Scaffold: ScaffoldConfiguration{
			ScssPartials: []string{"style", "_variables", "_skin", "_common", "_footer", "_header"},
		},
		MinSuffix: ".min",
		Vars:      map[string]interface{}{},
	}
}

// Load reads the configuration file at configpath on top of the defaults.
// An empty configpath looks for frontpipe.json and silently falls back to the
// defaults when it does not exist.
func Load(configpath string) (*Configuration, error) {
	cfg := Default()

	explicit := configpath != ""
	if !explicit {
		configpath = DefaultConfigFile
	}

	_, err := os.Stat(configpath)
	if err != nil {
		if !os.IsNotExist(err) || explicit {
			return nil, errors.Wrapf(err, "could not access configuration file %s", configpath)
		}
		return cfg, cfg.Validate()
	}

	f, err := os.Open(configpath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(configpath)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(cfg)
	default:
		err = json.NewDecoder(f).Decode(cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode configuration file %s", configpath)
	}

	return cfg, cfg.Validate()
}

// Validate checks the values that would otherwise only fail at trigger time.
func (c *Configuration) Validate() error {
	var err error
	if c.Root == "" {
		c.Root = "."
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		err = multierr.Append(err, &ConfigurationError{Key: "serve_config.port", Reason: fmt.Sprintf("%d is not a valid port", c.Serve.Port)})
	}
	if c.Watch.DebounceMS < 0 {
		err = multierr.Append(err, &ConfigurationError{Key: "watch.debounce_ms", Reason: "must not be negative"})
	}
	if _, rerr := regexp.Compile(c.Images.Search); rerr != nil {
		err = multierr.Append(err, &ConfigurationError{Key: "images.search", Reason: rerr.Error()})
	}
	err = multierr.Append(err, c.Paths.Require(Roles...))
	return err
}

func (c *Configuration) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// Abs resolves a slash separated project path against the root.
func (c *Configuration) Abs(p string) string {
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// Dump renders the effective configuration for debug output.
func (c *Configuration) Dump() string {
	return spew.Sdump(c)
}
