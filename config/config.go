package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/focus"
	"github.com/iammusetouch/ariana/pkg/retry"
	"github.com/iammusetouch/ariana/publish"
	"github.com/iammusetouch/ariana/stream"
)

// Config is the daemon configuration.
type Config struct {
	// Endpoint is the base URL of the vault server, e.g. http://localhost:8080.
	Endpoint     string   `json:"endpoint" yaml:"endpoint"`
	PathTemplate string   `json:"path_template,omitempty" yaml:"path_template,omitempty"`
	Roots        []string `json:"roots,omitempty" yaml:"roots,omitempty"`

	DiscoveryInterval Duration        `json:"discovery_interval" yaml:"discovery_interval"`
	ThrottleInterval  Duration        `json:"throttle_interval" yaml:"throttle_interval"`
	Reconnect         ReconnectConfig `json:"reconnect" yaml:"reconnect"`
	MaxEvents         int             `json:"max_events" yaml:"max_events"`

	NATS    NATSConfig    `json:"nats" yaml:"nats"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// ReconnectConfig is the stream reconnect backoff.
type ReconnectConfig struct {
	Unit       Duration `json:"unit" yaml:"unit"`
	Jitter     Duration `json:"jitter" yaml:"jitter"`
	MaxDelay   Duration `json:"max_delay" yaml:"max_delay"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries"` // 0 retries forever
}

// NATSConfig enables republishing to NATS when URL is set.
type NATSConfig struct {
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`
}

// MetricsConfig controls the metrics and health HTTP server. Port 0
// disables it.
type MetricsConfig struct {
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	policy := retry.DefaultPolicy()
	return &Config{
		Endpoint:          "http://localhost:8080",
		PathTemplate:      stream.DefaultPathTemplate,
		DiscoveryInterval: Duration(focus.DefaultDiscoveryInterval),
		ThrottleInterval:  Duration(stream.DefaultThrottleInterval),
		Reconnect: ReconnectConfig{
			Unit:   Duration(policy.Unit),
			Jitter: Duration(policy.Jitter),
		},
		NATS: NATSConfig{
			SubjectPrefix: publish.DefaultSubjectPrefix,
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: endpoint is required", errors.ErrMissingConfig),
			"config", "Validate", "check endpoint")
	}
	if _, err := stream.NewEndpoint(c.Endpoint, c.PathTemplate); err != nil {
		return errors.WrapInvalid(err, "config", "Validate", "check endpoint")
	}
	if c.DiscoveryInterval <= 0 {
		return invalid("discovery_interval must be positive")
	}
	if c.ThrottleInterval <= 0 {
		return invalid("throttle_interval must be positive")
	}
	if c.MaxEvents < 0 {
		return invalid("max_events cannot be negative")
	}
	if err := c.ReconnectPolicy().Validate(); err != nil {
		return errors.WrapInvalid(err, "config", "Validate", "check reconnect")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalid(fmt.Sprintf("invalid metrics port: %d", c.Metrics.Port))
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics path must start with /")
	}
	if c.NATS.URL != "" && !isValidSubjectPrefix(c.NATS.SubjectPrefix) {
		return invalid(fmt.Sprintf("invalid nats subject prefix: %q", c.NATS.SubjectPrefix))
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
		"config", "Validate", "check fields")
}

// isValidSubjectPrefix accepts dot-separated tokens without wildcards.
func isValidSubjectPrefix(s string) bool {
	if s == "" {
		return true
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" || strings.ContainsAny(part, "*> \t") {
			return false
		}
	}
	return true
}

// ReconnectPolicy converts the reconnect section to a retry.Policy.
func (c *Config) ReconnectPolicy() retry.Policy {
	return retry.Policy{
		Unit:       c.Reconnect.Unit.Std(),
		Jitter:     c.Reconnect.Jitter.Std(),
		MaxDelay:   c.Reconnect.MaxDelay.Std(),
		MaxRetries: c.Reconnect.MaxRetries,
	}
}

// FocusConfig returns the focus manager settings.
func (c *Config) FocusConfig() focus.Config {
	return focus.Config{
		Endpoint:          c.Endpoint,
		PathTemplate:      c.PathTemplate,
		DiscoveryInterval: c.DiscoveryInterval.Std(),
		ThrottleInterval:  c.ThrottleInterval.Std(),
		Reconnect:         c.ReconnectPolicy(),
		MaxEvents:         c.MaxEvents,
	}
}

// PublishConfig returns the NATS publisher settings.
func (c *Config) PublishConfig() publish.Config {
	return publish.Config{
		URL:           c.NATS.URL,
		SubjectPrefix: c.NATS.SubjectPrefix,
		ConnectBackoff: retry.Policy{
			Unit:     100 * time.Millisecond,
			MaxDelay: 5 * time.Second,
		},
		ConnectAttempts: 5,
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Roots = append([]string(nil), c.Roots...)
	return &clone
}
