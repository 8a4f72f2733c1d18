// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the frameport-service configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Service configures the preview hand-off service.
	Service ServiceConfig `yaml:"service"`

	// Status configures the CBOR status socket.
	Status StatusConfig `yaml:"status"`

	// Mixers lists the frame sources the daemon renders.
	Mixers []MixerConfig `yaml:"mixers"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment. Zero values leave the base value alone.
type ConfigOverrides struct {
	LogLevel string         `yaml:"log_level,omitempty"`
	Service  *ServiceConfig `yaml:"service,omitempty"`
	Status   *StatusConfig  `yaml:"status,omitempty"`
}

// ServiceConfig configures the preview hand-off service.
type ServiceConfig struct {
	// Name is the service name clients dial. Names starting with "/"
	// are filesystem sockets; others are abstract.
	// Default: frameport.preview
	Name string `yaml:"name"`

	// QueueCapacity bounds accepted requests waiting for the
	// consumer. Default: 4
	QueueCapacity int `yaml:"queue_capacity"`

	// SendTimeout bounds each message to a client. Default: 20ms
	SendTimeout time.Duration `yaml:"send_timeout"`

	// ReceiveErrors is "fatal" or "retry-transient". Default: fatal
	ReceiveErrors string `yaml:"receive_errors"`

	// RetryBackoff is the pause before a retried receive under
	// retry-transient. Default: 100ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StatusConfig configures the status socket.
type StatusConfig struct {
	// SocketPath is where the status socket listens. Empty disables
	// it. Default: ${FRAMEPORT_RUN_DIR:-/run/frameport}/status.sock
	SocketPath string `yaml:"socket_path"`
}

// MixerConfig describes one synthetic mixer.
type MixerConfig struct {
	// ID is the channel id clients use to reach the mixer.
	ID string `yaml:"id"`

	// Width and Height are in pixels. Frames are 4 bytes per pixel.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FPS is the render rate.
	FPS int `yaml:"fps"`

	// Pattern is "bars" or "gradient". Default: bars
	Pattern string `yaml:"pattern"`
}

// FrameSize returns the size in bytes of one RGBA frame.
func (m MixerConfig) FrameSize() int {
	return m.Width * m.Height * 4
}

// FrameInterval returns the time between frames.
func (m MixerConfig) FrameInterval() time.Duration {
	if m.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(m.FPS)
}

// Patterns lists the accepted MixerConfig.Pattern values.
var Patterns = []string{"bars", "gradient"}

// ReceiveErrorPolicies lists the accepted ServiceConfig.ReceiveErrors
// values.
var ReceiveErrorPolicies = []string{"fatal", "retry-transient"}

// maxServiceNameLength leaves room in sun_path for the abstract
// namespace prefix or the terminating NUL.
const maxServiceNameLength = 107

// maxMixerIDLength matches the protocol's channel id buffer.
const maxMixerIDLength = 127

// Default returns the default configuration, used as the base before
// the config file is applied.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Service: ServiceConfig{
			Name:          "frameport.preview",
			QueueCapacity: 4,
			SendTimeout:   20 * time.Millisecond,
			ReceiveErrors: "fatal",
			RetryBackoff:  100 * time.Millisecond,
		},
		Status: StatusConfig{
			SocketPath: "${FRAMEPORT_RUN_DIR:-/run/frameport}/status.sock",
		},
	}
}

// Load loads configuration from the file named by FRAMEPORT_CONFIG.
// It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("FRAMEPORT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FRAMEPORT_CONFIG environment variable not set; " +
			"set it to the path of your frameport.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. The result is not
// validated; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	cfg.applyMixerDefaults()

	return cfg, nil
}

// loadFile merges one file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document goes
		// through the same decoder and the same struct tags.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil && c.LogLevel == "debug" {
			overrides = &ConfigOverrides{LogLevel: "info"}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}

	if overrides.Service != nil {
		if overrides.Service.Name != "" {
			c.Service.Name = overrides.Service.Name
		}
		if overrides.Service.QueueCapacity != 0 {
			c.Service.QueueCapacity = overrides.Service.QueueCapacity
		}
		if overrides.Service.SendTimeout != 0 {
			c.Service.SendTimeout = overrides.Service.SendTimeout
		}
		if overrides.Service.ReceiveErrors != "" {
			c.Service.ReceiveErrors = overrides.Service.ReceiveErrors
		}
		if overrides.Service.RetryBackoff != 0 {
			c.Service.RetryBackoff = overrides.Service.RetryBackoff
		}
	}

	if overrides.Status != nil && overrides.Status.SocketPath != "" {
		c.Status.SocketPath = overrides.Status.SocketPath
	}
}

// applyMixerDefaults fills in omitted per-mixer fields.
func (c *Config) applyMixerDefaults() {
	for i := range c.Mixers {
		if c.Mixers[i].Pattern == "" {
			c.Mixers[i].Pattern = "bars"
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// the status socket path and the service name.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Status.SocketPath = expandVars(c.Status.SocketPath, vars)
	c.Service.Name = expandVars(c.Service.Name, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, looking in
// vars first and then the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem at
// once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	} else if len(c.Service.Name) > maxServiceNameLength {
		errs = append(errs, fmt.Errorf("service.name is %d bytes, max %d", len(c.Service.Name), maxServiceNameLength))
	}
	if c.Service.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("service.queue_capacity must be positive, got %d", c.Service.QueueCapacity))
	}
	if c.Service.SendTimeout <= 0 || c.Service.SendTimeout > time.Second {
		errs = append(errs, fmt.Errorf("service.send_timeout must be in (0, 1s], got %v", c.Service.SendTimeout))
	}
	if !slices.Contains(ReceiveErrorPolicies, c.Service.ReceiveErrors) {
		errs = append(errs, fmt.Errorf("service.receive_errors must be one of: %v", ReceiveErrorPolicies))
	}
	if c.Service.RetryBackoff <= 0 {
		errs = append(errs, fmt.Errorf("service.retry_backoff must be positive, got %v", c.Service.RetryBackoff))
	}

	if len(c.Mixers) == 0 {
		errs = append(errs, errors.New("at least one mixer is required"))
	}
	seen := make(map[string]bool, len(c.Mixers))
	for i, mixer := range c.Mixers {
		prefix := fmt.Sprintf("mixers[%d]", i)
		switch {
		case mixer.ID == "":
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		case len(mixer.ID) > maxMixerIDLength:
			errs = append(errs, fmt.Errorf("%s.id is %d bytes, max %d", prefix, len(mixer.ID), maxMixerIDLength))
		case strings.IndexByte(mixer.ID, 0) >= 0:
			errs = append(errs, fmt.Errorf("%s.id contains a NUL byte", prefix))
		case seen[mixer.ID]:
			errs = append(errs, fmt.Errorf("%s.id %q is duplicated", prefix, mixer.ID))
		}
		seen[mixer.ID] = true

		if mixer.Width <= 0 || mixer.Height <= 0 {
			errs = append(errs, fmt.Errorf("%s: width and height must be positive, got %dx%d", prefix, mixer.Width, mixer.Height))
		}
		if mixer.FPS < 1 || mixer.FPS > 240 {
			errs = append(errs, fmt.Errorf("%s.fps must be in [1, 240], got %d", prefix, mixer.FPS))
		}
		if !slices.Contains(Patterns, mixer.Pattern) {
			errs = append(errs, fmt.Errorf("%s.pattern must be one of: %v", prefix, Patterns))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureStatusDirectory creates the directory holding the status
// socket.
func (c *Config) EnsureStatusDirectory() error {
	if c.Status.SocketPath == "" {
		return nil
	}
	directory := filepath.Dir(c.Status.SocketPath)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}
	return nil
}
