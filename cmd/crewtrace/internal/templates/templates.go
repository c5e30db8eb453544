// Package templates provides the embedded crew configurations used when no
// -config is given and by `crewtrace init`.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/germanamz/crewtrace/pkg/engine"
	"gopkg.in/yaml.v3"
)

// Default is the template used when no crew configuration is given.
const Default = "blog"

//go:embed crews/*.yaml
var templateFS embed.FS

// TemplateMeta holds display metadata for a template.
type TemplateMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Template wraps an engine.Config with metadata.
type Template struct {
	Meta   TemplateMeta  `yaml:"template"`
	Config engine.Config `yaml:"config"`
}

// List returns metadata for all available templates.
func List() []TemplateMeta {
	entries, err := templateFS.ReadDir("crews")
	if err != nil {
		return nil
	}

	var metas []TemplateMeta
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		t, err := load("crews/" + e.Name())
		if err != nil {
			continue
		}
		metas = append(metas, t.Meta)
	}

	return metas
}

// Get loads a template by name. Returns an error if the template is not found.
func Get(name string) (Template, error) {
	t, err := load("crews/" + name + ".yaml")
	if errors.Is(err, os.ErrNotExist) {
		return Template{}, fmt.Errorf("templates: %q not found", name)
	}
	if err != nil {
		return Template{}, err
	}

	return t, nil
}

// Apply writes the template's config as YAML to path. If force is false an
// existing file is left untouched and an error is returned.
func Apply(t Template, path string, force bool) error {
	data, err := yaml.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("templates: marshal config: %w", err)
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("templates: config already exists at %s (use -force to overwrite)", path)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("templates: create dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config file, not secret
		return fmt.Errorf("templates: write config: %w", err)
	}

	return nil
}

func load(filename string) (Template, error) {
	data, err := templateFS.ReadFile(filename)
	if err != nil {
		return Template{}, err
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("templates: parse %s: %w", filename, err)
	}

	return t, nil
}
