package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileNames are the names Load looks for, in order.
var FileNames = []string{"excelslim.yml", "excelslim.yaml"}

// ToolConfig describes an external stage tool. Args may contain
// placeholders such as {input}, {output} and {log} that are expanded per call.
type ToolConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

// Tools binds each stage to its external tool.
type Tools struct {
	Clean     ToolConfig `yaml:"clean"`
	Image     ToolConfig `yaml:"image"`
	Precision ToolConfig `yaml:"precision"`
}

// ImageSettings controls the image stage.
type ImageSettings struct {
	MaxEdge     int   `yaml:"maxEdge,omitempty"`
	Quality     int   `yaml:"quality,omitempty"`
	Progressive *bool `yaml:"progressive,omitempty"`
}

// Config holds tool-level settings loaded from excelslim.yml. It describes
// how stages are reached, not which stages a run selects.
type Config struct {
	Tools Tools         `yaml:"tools"`
	Image ImageSettings `yaml:"image"`
}

// Default returns the built-in configuration.
func Default() *Config {
	progressive := true
	return &Config{
		Tools: Tools{
			Clean: ToolConfig{
				Command: "excel-clean",
				Args:    []string{"{input}", "{output}"},
			},
			Image: ToolConfig{
				Command: "excel-image-slim",
				Args: []string{
					"--max-edge", "{max_edge}",
					"--quality", "{quality}",
					"--log", "{log}",
					"{input}", "{output}",
				},
			},
			Precision: ToolConfig{
				Command: "excel-precision",
				Args:    []string{"{input}", "{output}"},
			},
		},
		Image: ImageSettings{
			MaxEdge:     1400,
			Quality:     80,
			Progressive: &progressive,
		},
	}
}

// ProgressiveEnabled reports whether images are re-encoded as progressive.
func (s ImageSettings) ProgressiveEnabled() bool {
	return s.Progressive == nil || *s.Progressive
}

// Load attempts to read excelslim.yml or excelslim.yaml from the given
// directory. Returns the default config (not an error) if no config file
// exists.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		cfg, err := LoadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

// LoadFile reads the config at path, filling unset fields from Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every tool has a command and the image settings are
// in range.
func (c *Config) Validate() error {
	for name, tool := range map[string]ToolConfig{
		"clean":     c.Tools.Clean,
		"image":     c.Tools.Image,
		"precision": c.Tools.Precision,
	} {
		if tool.Command == "" {
			return fmt.Errorf("tools.%s.command is empty", name)
		}
	}
	if c.Image.MaxEdge <= 0 {
		return fmt.Errorf("image.maxEdge must be positive, got %d", c.Image.MaxEdge)
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be within 1-100, got %d", c.Image.Quality)
	}
	return nil
}
