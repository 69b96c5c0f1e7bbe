// accessd - authenticated, time-bounded network access control
// Copyright (C) 2026 accessd-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config holds daemon configuration: the request port, lease
// duration, key and state file paths, the hook command, and the optional
// health/metrics listener.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults matching the daemon's CLI surface.
const (
	DefaultPort            = 7387
	DefaultDuration        = 900 * time.Second
	DefaultStateFilename   = "/var/db/accessd_state.yaml"
	DefaultKeyDataFilename = "/etc/accessd_keydata.yaml"
)

// Config represents the daemon configuration structure
type Config struct {
	Network *NetworkConfig `yaml:"network" json:"network"`
	Session *SessionConfig `yaml:"session" json:"session"`
	Paths   *PathsConfig   `yaml:"paths" json:"paths"`
	Hook    string         `yaml:"hook" json:"hook"`
	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
}

// NetworkConfig represents the UDP listener configuration
type NetworkConfig struct {
	Port int `yaml:"port" json:"port"`
}

// SessionConfig represents lease timing configuration
type SessionConfig struct {
	DurationSeconds uint64 `yaml:"duration_seconds" json:"duration_seconds"`
}

// Duration returns the configured lease duration.
func (s *SessionConfig) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// PathsConfig represents on-disk file locations
type PathsConfig struct {
	StateFile   string `yaml:"state_file" json:"state_file"`
	KeyDataFile string `yaml:"key_data_file" json:"key_data_file"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// HealthConfig represents the optional health/metrics HTTP listener
type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

// Default returns a configuration populated with the daemon defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFromFile loads configuration from a YAML file, substituting
// ${VAR} / ${VAR:default} references from the environment.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(SubstituteEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Network.Port)
	}
	if c.Session.DurationSeconds == 0 {
		return fmt.Errorf("session duration must be positive")
	}
	if c.Paths.StateFile == "" || c.Paths.KeyDataFile == "" {
		return fmt.Errorf("state and key data file paths must be set")
	}
	if c.Health != nil && c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		return fmt.Errorf("invalid health port %d", c.Health.Port)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Network == nil {
		cfg.Network = &NetworkConfig{}
	}
	if cfg.Network.Port == 0 {
		cfg.Network.Port = DefaultPort
	}
	if cfg.Session == nil {
		cfg.Session = &SessionConfig{}
	}
	if cfg.Session.DurationSeconds == 0 {
		cfg.Session.DurationSeconds = uint64(DefaultDuration / time.Second)
	}
	if cfg.Paths == nil {
		cfg.Paths = &PathsConfig{}
	}
	if cfg.Paths.StateFile == "" {
		cfg.Paths.StateFile = DefaultStateFilename
	}
	if cfg.Paths.KeyDataFile == "" {
		cfg.Paths.KeyDataFile = DefaultKeyDataFilename
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{Level: "info"}
	}
	if cfg.Health == nil {
		cfg.Health = &HealthConfig{Enabled: false, Port: 8080}
	}
	if cfg.Health.Port == 0 {
		cfg.Health.Port = 8080
	}
}
