package widgettoolkit

import (
	"fmt"
	"os"
	"time"

	"github.com/nordeck/matrix-widget-toolkit-sub000/capabilities"
	"gopkg.in/yaml.v2"
)

// Config is the YAML description of a widget registration:
//
//	capabilities:
//	  - org.matrix.msc2762.receive.state_event:m.room.name
//	  - org.matrix.msc2931.navigate
//	support_standalone: false
//	openid_leeway: 30s
type Config struct {
	Capabilities      []string `yaml:"capabilities"`
	SupportStandalone bool     `yaml:"support_standalone"`
	// OpenIDLeeway is a duration string as accepted by time.ParseDuration.
	OpenIDLeeway string `yaml:"openid_leeway"`

	leeway time.Duration
}

// ParseConfig parses a YAML widget registration.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad widget config: %w", err)
	}
	if c.OpenIDLeeway != "" {
		d, err := time.ParseDuration(c.OpenIDLeeway)
		if err != nil {
			return nil, fmt.Errorf("widgettoolkit: bad openid_leeway: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("widgettoolkit: openid_leeway must not be negative")
		}
		c.leeway = d
	}
	return &c, nil
}

// LoadConfig reads a YAML widget registration from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// Identifiers returns the configured initial capabilities.
func (c *Config) Identifiers() []capabilities.Identifier {
	return capabilities.FromStrings(c.Capabilities...)
}

// Options returns the WidgetAPI options the config sets.
func (c *Config) Options() []Option {
	opts := []Option{WithSupportStandalone(c.SupportStandalone)}
	if c.OpenIDLeeway != "" {
		opts = append(opts, WithOpenIDLeeway(c.leeway))
	}
	return opts
}
