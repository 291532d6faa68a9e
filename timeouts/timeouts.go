// Package timeouts provides the per-tool timeout lookup. The table is
// configuration data: long-running tools get custom ceilings, everything
// else gets the default.
package timeouts

import (
	"strings"
	"time"

	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// DefaultTimeout is applied to any tool without a configured override.
const DefaultTimeout = 60 * time.Second

// Config describes the timeout table, loadable from a yaml or json file.
type Config struct {
	// DefaultTimeoutMs overrides the built-in 60000ms default when positive.
	DefaultTimeoutMs int64 `json:"default_timeout_ms,omitempty" yaml:"default_timeout_ms,omitempty"`

	Tools []ToolTimeout `json:"tools,omitempty" yaml:"tools,omitempty" validate:"dive"`
}

// ToolTimeout is a single per-tool override.
type ToolTimeout struct {
	Name      string `json:"name" yaml:"name" validate:"required"`
	TimeoutMs int64  `json:"timeout_ms" yaml:"timeout_ms" validate:"required,gt=0"`
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Policy is a pure, side-effect-free per-tool timeout lookup.
type Policy struct {
	def       time.Duration
	overrides map[string]time.Duration
}

// NewPolicy creates a Policy from the config; nil config yields defaults only.
func NewPolicy(cfg *Config) *Policy {
	p := &Policy{
		def:       DefaultTimeout,
		overrides: make(map[string]time.Duration),
	}
	if cfg == nil {
		return p
	}
	if cfg.DefaultTimeoutMs > 0 {
		p.def = time.Duration(cfg.DefaultTimeoutMs) * time.Millisecond
	}
	for _, t := range cfg.Tools {
		// use lowercase for the key
		p.overrides[strings.ToLower(t.Name)] = time.Duration(t.TimeoutMs) * time.Millisecond
	}
	return p
}

// TimeoutFor returns the timeout ceiling for the named tool.
func (p *Policy) TimeoutFor(toolName string) time.Duration {
	if d, ok := p.overrides[strings.ToLower(toolName)]; ok {
		return d
	}
	return p.def
}
