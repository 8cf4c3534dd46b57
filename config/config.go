// Package config loads runtime settings for agentrelay from YAML files and
// the environment.
//
// A minimal configuration file:
//
//	runner:
//	  max_turns: 10
//	  rerun_handoff_guardrails: target
//	model:
//	  provider: openai
//	  name: ${MODEL_NAME}
//	  base_url: ${API_BASE}
//	  api_key: ${API_KEY}
//	logging:
//	  level: info
//	  format: text
//
// ${VAR} references are expanded before parsing. API_KEY, API_BASE and
// MODEL_NAME override the corresponding model fields when set.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/model/anthropic"
	"github.com/hupe1980/agentrelay/model/openai"
	"github.com/hupe1980/agentrelay/runner"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the root configuration.
type Config struct {
	Runner  RunnerConfig  `yaml:"runner"`
	Model   ModelConfig   `yaml:"model"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RunnerConfig bounds and tunes runs.
type RunnerConfig struct {
	MaxTurns               int    `yaml:"max_turns"`
	MaxToolParallelism     int    `yaml:"max_tool_parallelism"`
	RerunHandoffGuardrails string `yaml:"rerun_handoff_guardrails"`
}

// ModelConfig selects the turn producer backend.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`

	Settings model.Settings `yaml:",inline"`
}

// LoggingConfig configures the run logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			MaxTurns:               runner.DefaultMaxTurns,
			RerunHandoffGuardrails: runner.RerunTargetGuardrails.String(),
		},
		Model: ModelConfig{
			Provider: ProviderOpenAI,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result. An empty path yields the defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes YAML from r on top of Default, applies environment overrides
// and validates the result. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()

	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports invalid settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Runner.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("runner.max_turns must be positive, got %d", c.Runner.MaxTurns))
	}
	if c.Runner.MaxToolParallelism < 0 {
		errs = append(errs, errors.New("runner.max_tool_parallelism must not be negative"))
	}
	if _, ok := runner.ParseGuardrailRerunPolicy(c.Runner.RerunHandoffGuardrails); !ok {
		errs = append(errs, fmt.Errorf("runner.rerun_handoff_guardrails: unknown policy %q", c.Runner.RerunHandoffGuardrails))
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}
	if t := c.Model.Settings.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0, 2], got %v", *t))
	}
	if mt := c.Model.Settings.MaxTokens; mt != nil && *mt < 1 {
		errs = append(errs, fmt.Errorf("model.max_tokens must be positive, got %d", *mt))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) logging.Logger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.NewLogger(logging.Config{
		Level:     level,
		Format:    strings.ToLower(c.Logging.Format),
		Output:    w,
		Component: "agentrelay",
	})
}

// ModelProvider builds a model.Provider for the configured backend. Agents
// that name no model receive Model.Name.
func (c *Config) ModelProvider() model.Provider {
	mc := c.Model

	switch mc.Provider {
	case ProviderAnthropic:
		return model.ProviderFunc(func(name string) (model.Model, error) {
			if name == "" {
				name = mc.Name
			}
			return anthropic.NewModel(func(o *anthropic.Options) {
				o.APIKey = mc.APIKey
				o.BaseURL = mc.BaseURL
				if name != "" {
					o.Model = anthropicsdk.Model(name)
				}
				if mt := mc.Settings.MaxTokens; mt != nil {
					o.MaxTokens = *mt
				}
			}), nil
		})
	default:
		return openai.NewProvider(func(o *openai.Options) {
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Name != "" {
				o.Model = mc.Name
			}
			if mt := mc.Settings.MaxTokens; mt != nil {
				o.MaxCompletionTokens = *mt
			}
		})
	}
}

// RunnerOptions translates the configuration into runner options. The model
// provider and logger are only set when the caller has not set them yet.
func (c *Config) RunnerOptions(logOutput io.Writer) func(o *runner.Options) {
	return func(o *runner.Options) {
		o.MaxTurns = c.Runner.MaxTurns
		o.MaxToolParallelism = c.Runner.MaxToolParallelism
		if p, ok := runner.ParseGuardrailRerunPolicy(c.Runner.RerunHandoffGuardrails); ok {
			o.RerunHandoffGuardrails = p
		}
		o.Settings = o.Settings.Merge(c.Model.Settings)
		if o.ModelProvider == nil {
			o.ModelProvider = c.ModelProvider()
		}
		if _, noop := o.Logger.(logging.NoOpLogger); o.Logger == nil || noop {
			o.Logger = c.Logger(logOutput)
		}
	}
}
