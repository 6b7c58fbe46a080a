package focus

import (
	"fmt"
	"time"

	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/pkg/retry"
	"github.com/iammusetouch/ariana/stream"
)

// DefaultDiscoveryInterval is the period between discovery passes.
const DefaultDiscoveryInterval = 5 * time.Second

// Config holds the manager's settings.
type Config struct {
	// Endpoint is the base HTTP(S) or WS(S) URL of the vault server.
	Endpoint string
	// PathTemplate is appended to Endpoint; {id} becomes the vault key.
	PathTemplate string

	DiscoveryInterval time.Duration
	ThrottleInterval  time.Duration
	Reconnect         retry.Policy

	// MaxEvents caps the focused source's event log. 0 keeps every event.
	MaxEvents int
}

// DefaultConfig returns a configuration for endpoint with default intervals
// and an unbounded reconnect policy.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		PathTemplate:      stream.DefaultPathTemplate,
		DiscoveryInterval: DefaultDiscoveryInterval,
		ThrottleInterval:  stream.DefaultThrottleInterval,
		Reconnect:         retry.DefaultPolicy(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "focus", "Validate", "check endpoint")
	}
	if c.DiscoveryInterval < 0 || c.ThrottleInterval < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: intervals cannot be negative", errors.ErrInvalidConfig),
			"focus", "Validate", "check intervals")
	}
	if c.MaxEvents < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max events cannot be negative", errors.ErrInvalidConfig),
			"focus", "Validate", "check max events")
	}
	if err := c.Reconnect.Validate(); err != nil {
		return errors.WrapInvalid(err, "focus", "Validate", "check reconnect policy")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PathTemplate == "" {
		c.PathTemplate = stream.DefaultPathTemplate
	}
	if c.DiscoveryInterval == 0 {
		c.DiscoveryInterval = DefaultDiscoveryInterval
	}
	if c.ThrottleInterval == 0 {
		c.ThrottleInterval = stream.DefaultThrottleInterval
	}
	return c
}
