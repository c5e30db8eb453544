package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ProcessSequential runs tasks one after another in declaration order. It is
// the only supported process.
const ProcessSequential = "sequential"

// Config is the top-level crew configuration.
type Config struct {
	Providers []ProviderConfig `yaml:"providers" toml:"providers"`
	Agents    []AgentConfig    `yaml:"agents" toml:"agents"`
	Tasks     []TaskConfig     `yaml:"tasks" toml:"tasks"`
	Process   string           `yaml:"process,omitempty" toml:"process,omitempty"`
	Verbose   bool             `yaml:"verbose,omitempty" toml:"verbose,omitempty"`
}

// ProviderConfig describes an LLM provider instance. Empty connection fields
// are filled from Settings when the engine is built.
type ProviderConfig struct {
	Name        string   `yaml:"name" toml:"name"`
	Kind        string   `yaml:"kind" toml:"kind"`
	BaseURL     string   `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty" toml:"api_key,omitempty"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string   `yaml:"model,omitempty" toml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	// AuthHeader and AuthScheme override "Authorization: Bearer <key>" for
	// proxies that expect e.g. "api-key: <key>".
	AuthHeader string            `yaml:"auth_header,omitempty" toml:"auth_header,omitempty"`
	AuthScheme string            `yaml:"auth_scheme,omitempty" toml:"auth_scheme,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`
}

// AgentConfig describes an agent persona.
type AgentConfig struct {
	Name      string `yaml:"name" toml:"name"`
	Role      string `yaml:"role,omitempty" toml:"role,omitempty"`
	Goal      string `yaml:"goal,omitempty" toml:"goal,omitempty"`
	Backstory string `yaml:"backstory,omitempty" toml:"backstory,omitempty"`
	Provider  string `yaml:"provider,omitempty" toml:"provider,omitempty"`
	Verbose   bool   `yaml:"verbose,omitempty" toml:"verbose,omitempty"`
	// MaxExecutionTime bounds one task execution, in seconds. Zero means no
	// bound beyond the request timeout.
	MaxExecutionTime int `yaml:"max_execution_time,omitempty" toml:"max_execution_time,omitempty"`
}

// TaskConfig describes one unit of work assigned to an agent. Description,
// ExpectedOutput and OutputFile may reference kickoff inputs as {key}.
type TaskConfig struct {
	Name           string `yaml:"name" toml:"name"`
	Description    string `yaml:"description" toml:"description"`
	ExpectedOutput string `yaml:"expected_output,omitempty" toml:"expected_output,omitempty"`
	Agent          string `yaml:"agent" toml:"agent"`
	OutputFile     string `yaml:"output_file,omitempty" toml:"output_file,omitempty"`
}

// Format selects the configuration syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// FormatForPath picks the format from a file extension; anything other than
// .toml is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadConfig reads a YAML or TOML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR are expanded before
// parsing so secrets can stay in the environment (e.g. loaded from a .env
// file) rather than in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data, FormatForPath(path))
}

// ParseConfig expands environment variables in data and decodes it.
func ParseConfig(data []byte, format Format) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config

	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return Config{}, fmt.Errorf("engine: parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("engine: parse config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("engine: config: at least one provider is required")
	}

	providerNames := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("engine: config: provider name is required")
		}
		if p.Kind == "" {
			return fmt.Errorf("engine: config: provider %q: kind is required", p.Name)
		}
		if _, dup := providerNames[p.Name]; dup {
			return fmt.Errorf("engine: config: duplicate provider name %q", p.Name)
		}
		providerNames[p.Name] = struct{}{}
	}

	if len(c.Agents) == 0 {
		return errors.New("engine: config: at least one agent is required")
	}

	agentNames := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return errors.New("engine: config: agent name is required")
		}
		if _, dup := agentNames[a.Name]; dup {
			return fmt.Errorf("engine: config: duplicate agent name %q", a.Name)
		}
		agentNames[a.Name] = struct{}{}

		if _, ok := providerNames[a.Provider]; a.Provider != "" && !ok {
			return fmt.Errorf("engine: config: agent %q: unknown provider %q", a.Name, a.Provider)
		}
		if a.MaxExecutionTime < 0 {
			return fmt.Errorf("engine: config: agent %q: max_execution_time must not be negative", a.Name)
		}
	}

	if len(c.Tasks) == 0 {
		return errors.New("engine: config: at least one task is required")
	}

	taskNames := make(map[string]struct{}, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return errors.New("engine: config: task name is required")
		}
		if _, dup := taskNames[t.Name]; dup {
			return fmt.Errorf("engine: config: duplicate task name %q", t.Name)
		}
		taskNames[t.Name] = struct{}{}

		if strings.TrimSpace(t.Description) == "" {
			return fmt.Errorf("engine: config: task %q: description is required", t.Name)
		}
		if _, ok := agentNames[t.Agent]; !ok {
			return fmt.Errorf("engine: config: task %q: unknown agent %q", t.Name, t.Agent)
		}
	}

	if c.Process != "" && c.Process != ProcessSequential {
		return fmt.Errorf("engine: config: unsupported process %q", c.Process)
	}

	return nil
}

// ProcessName returns the configured process, defaulting to sequential.
func (c Config) ProcessName() string {
	if c.Process == "" {
		return ProcessSequential
	}
	return c.Process
}
