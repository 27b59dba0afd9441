// Package config — localehero.yaml project configuration.
//
// The config file is the sole source of truth for what gets translated:
// every target must be explicitly declared. No auto-detection happens at
// translate time.
//
//	source_locale: en
//	output_locales: [de, fr, ja]
//	base_branch: main
//	targets:
//	  - name: app strings
//	    source: config/locales/en.yml
//	    target_pattern: config/locales/%lang%.yml
//	  - name: marketing site
//	    source: locales/en.json
//	    target_pattern: locales/%lang%.json
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the project config file name.
const FileName = "localehero.yaml"

// LangPlaceholder is replaced with the locale code in target patterns.
const LangPlaceholder = "%lang%"

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Config is the top-level localehero.yaml structure.
type Config struct {
	// SourceLocale is the locale the source files are written in.
	SourceLocale string `yaml:"source_locale"`
	// OutputLocales are the locales to keep synchronized.
	OutputLocales []string `yaml:"output_locales"`
	// BaseBranch is the git ref used by the changed-keys filter.
	BaseBranch string `yaml:"base_branch,omitempty"`
	// Targets are the translation units.
	Targets []Target `yaml:"targets"`

	// dir is where the config file was loaded from.
	dir string
}

// Target is one source file kept in sync across locales.
type Target struct {
	// Name is a human-readable label for status output and logs.
	Name string `yaml:"name"`
	// Source is the source-locale file, relative to the config file.
	Source string `yaml:"source"`
	// TargetPattern is the per-locale file path, with %lang% standing
	// in for the locale code.
	TargetPattern string `yaml:"target_pattern"`
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads localehero.yaml from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.dir = dir

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to dir/localehero.yaml.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.SourceLocale == "" {
		return fmt.Errorf("source_locale is required")
	}
	if len(c.OutputLocales) == 0 {
		return fmt.Errorf("output_locales is required")
	}
	for i, t := range c.Targets {
		if t.Source == "" {
			return fmt.Errorf("targets[%d]: source is required", i)
		}
		if !strings.Contains(t.TargetPattern, LangPlaceholder) {
			return fmt.Errorf("targets[%d]: target_pattern must contain %s", i, LangPlaceholder)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Path resolution
// ---------------------------------------------------------------------------

// Dir returns the directory the config was loaded from.
func (c *Config) Dir() string { return c.dir }

// SourcePaths returns every target's source file path, relative to the
// config directory.
func (c *Config) SourcePaths() []string {
	paths := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		paths = append(paths, c.resolve(t.Source))
	}
	return paths
}

// TargetPath resolves the target file for a (source path, locale) pair.
// Unknown source paths are an error: a sync update naming a file the
// config does not declare must not guess a location.
func (c *Config) TargetPath(sourcePath, locale string) (string, error) {
	for _, t := range c.Targets {
		if c.resolve(t.Source) == sourcePath || t.Source == sourcePath {
			return c.resolve(strings.ReplaceAll(t.TargetPattern, LangPlaceholder, locale)), nil
		}
	}
	return "", fmt.Errorf("no target declared for source file %s", sourcePath)
}

func (c *Config) resolve(path string) string {
	if c.dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.dir, path)
}

// Starter returns the config written by `init`.
func Starter() *Config {
	return &Config{
		SourceLocale:  "en",
		OutputLocales: []string{"de"},
		Targets: []Target{{
			Name:          "app strings",
			Source:        "locales/en.json",
			TargetPattern: "locales/%lang%.json",
		}},
	}
}
