// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the PEA runtime configuration: a YAML file with
// environment variable overrides on top. All fields have defaults, so an
// absent file yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

// Config is the root of the PEA runtime configuration.
type Config struct {
	PEA       PEAConfig       `yaml:"pea"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Execution ExecutionConfig `yaml:"execution"`
}

// PEAConfig identifies the process equipment assembly.
type PEAConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

// SentryConfig configures fault reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// ExecutionConfig configures the service control planes.
type ExecutionConfig struct {
	// JoinTimeout bounds how long a cancelled state body may take to
	// terminate before it is treated as faulted.
	JoinTimeout time.Duration `yaml:"joinTimeout"`

	// CommandPrecedence orders commands pending in the same admission
	// cycle. abort must come first.
	CommandPrecedence []string `yaml:"commandPrecedence"`

	// QueueSize is the per-service control plane buffer.
	QueueSize int `yaml:"queueSize"`
}

// DefaultConfig returns the configuration used when no file and no
// overrides are present.
func DefaultConfig() Config {
	return Config{
		PEA: PEAConfig{
			Name: "pea",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Address: ":8105",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":8106",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Execution: ExecutionConfig{
			JoinTimeout:       5 * time.Second,
			CommandPrecedence: []string{"abort", "stop", "hold"},
			QueueSize:         32,
		},
	}
}

// Load reads the configuration file at path, falls back to defaults when the
// file does not exist and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values that would misbehave
// at runtime.
func (c *Config) Validate() error {
	if c.PEA.Name == "" {
		return fmt.Errorf("pea.name must not be empty")
	}

	if c.Execution.JoinTimeout <= 0 {
		return fmt.Errorf("execution.joinTimeout must be positive, got %s", c.Execution.JoinTimeout)
	}

	if len(c.Execution.CommandPrecedence) > 0 {
		if c.Execution.CommandPrecedence[0] != string(statemachine.CommandAbort) {
			return fmt.Errorf("execution.commandPrecedence must rank %s first",
				statemachine.CommandAbort)
		}

		for _, name := range c.Execution.CommandPrecedence {
			if !statemachine.Command(name).IsValid() {
				return fmt.Errorf("execution.commandPrecedence: unknown command %q", name)
			}
		}
	}

	return nil
}

// Precedence converts the configured command order into the state machine's
// precedence type.
func (c *Config) Precedence() statemachine.Precedence {
	if len(c.Execution.CommandPrecedence) == 0 {
		return statemachine.DefaultPrecedence
	}

	p := make(statemachine.Precedence, 0, len(c.Execution.CommandPrecedence))
	for _, name := range c.Execution.CommandPrecedence {
		p = append(p, statemachine.Command(name))
	}

	return p
}
