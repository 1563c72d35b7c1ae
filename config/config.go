// Package config provides YAML configuration parsing for blockwatch.
//
// This package enables running blockwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	endpoint: https://api.example.com/api/status
//	poll_interval: 10s
//	timeout: 5s
//	fallback: true
//
//	headers:
//	  Authorization: Bearer ${API_TOKEN}
//
//	port: 8080
//	data_file: deployments.json
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval for production
// configs. This prevents accidental DoS of the backend with overly
// aggressive polling.
const minPollInterval = 1 * time.Second

// Config is the root configuration structure for blockwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Endpoint is the status endpoint URL the poller tracks.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Endpoint string `yaml:"endpoint"`

	// PollInterval is the time between poll cycles.
	// Accepts duration strings like "10s", "1m", "500ms".
	// Defaults to 10s.
	PollInterval Duration `yaml:"poll_interval"`

	// Timeout is the per-request fetch timeout. Defaults to 5s.
	Timeout Duration `yaml:"timeout"`

	// Fallback controls synthesizing a local snapshot when a fetch
	// fails. Defaults to true when omitted.
	Fallback *bool `yaml:"fallback"`

	// Headers are custom HTTP headers sent with each status fetch.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Port is the HTTP port for the mock backend server. Defaults to 8080.
	Port int `yaml:"port"`

	// DataFile is where the mock backend persists deployment records as
	// a flat JSON array. Empty means records live in memory only.
	// Supports environment variable substitution.
	DataFile string `yaml:"data_file"`
}

// FallbackEnabled resolves the Fallback field, defaulting to true.
func (c *Config) FallbackEnabled() bool {
	if c.Fallback == nil {
		return true
	}
	return *c.Fallback
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in Endpoint, DataFile, and Header
// values. Defaults are applied for Port (8080), PollInterval (10s), and
// Timeout (5s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(10 * time.Second)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(5 * time.Second)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	expanded, err := expandEnvVars(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	c.Endpoint = expanded

	parsedURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("endpoint must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", parsedURL.Scheme)
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	if c.DataFile != "" {
		expanded, err := expandEnvVars(c.DataFile)
		if err != nil {
			return fmt.Errorf("data_file: %w", err)
		}
		c.DataFile = expanded
	}

	if c.Timeout.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration())
	}
	if c.Timeout.Duration() < time.Second {
		return fmt.Errorf("timeout must be at least 1s if specified, got %s", c.Timeout.Duration())
	}

	if c.PollInterval.Duration() > time.Hour {
		return fmt.Errorf("poll_interval must not exceed 1h, got %s", c.PollInterval.Duration())
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	return nil
}
