package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a8m/envsubst"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/noncewatch/noncewatch/internal/drift"
)

// Config is the explicit configuration value object, constructed once at
// process start and passed by parameter into every component.
type Config struct {
	ProcessesFile string `yaml:"processes_file"`
	Process       string `yaml:"process"`

	PrimaryURL   string `yaml:"primary_url" validate:"required,url"`
	SecondaryURL string `yaml:"secondary_url" validate:"required,url"`

	RequestTimeout string `yaml:"request_timeout"`
	Schedule       string `yaml:"schedule"`

	Retry    Retry    `yaml:"retry"`
	Alerting Alerting `yaml:"alerting"`

	StateFile string `yaml:"state_file"`
}

type Retry struct {
	MaxRetries int    `yaml:"max_retries" validate:"gte=0"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
}

type Alerting struct {
	Threshold       int64     `yaml:"threshold" validate:"gte=0"`
	FailOnMismatch  bool      `yaml:"fail_on_mismatch"`
	SlackWebhookURL string    `yaml:"slack_webhook_url" validate:"omitempty,url"`
	ChatTemplate    string    `yaml:"chat_template"`
	PagerDuty       PagerDuty `yaml:"pagerduty"`
	ShoutrrrURL     string    `yaml:"shoutrrr_url"`
}

type PagerDuty struct {
	Enabled           bool   `yaml:"enabled"`
	RoutingKey        string `yaml:"routing_key"`
	EventsURL         string `yaml:"events_url" validate:"omitempty,url"`
	SeverityThreshold string `yaml:"severity_threshold" validate:"omitempty,oneof=warning error critical"`
	AutoResolve       *bool  `yaml:"auto_resolve"`
}

// Defaults applied when fields are left empty.
const (
	DefaultRequestTimeout = "10s"
	DefaultSchedule       = "@every 5m"
	DefaultMaxRetries     = 5
	DefaultBaseDelay      = "1s"
	DefaultMaxDelay       = "30s"
	DefaultThreshold      = 50
)

// Load reads, env-expands, parses, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	data, err = envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == "" {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Retry.MaxRetries == 0 && c.Retry.BaseDelay == "" && c.Retry.MaxDelay == "" {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Alerting.Threshold == 0 {
		c.Alerting.Threshold = DefaultThreshold
	}
	if c.Alerting.PagerDuty.SeverityThreshold == "" {
		c.Alerting.PagerDuty.SeverityThreshold = string(drift.SeverityWarning)
	}
	if c.StateFile == "" {
		c.StateFile = defaultStateFile()
	}
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".noncewatch/alert-state.json"
	}
	return filepath.Join(home, ".noncewatch", "alert-state.json")
}

// Validate checks struct tags and the duration fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for name, val := range map[string]string{
		"request_timeout":  c.RequestTimeout,
		"retry.base_delay": c.Retry.BaseDelay,
		"retry.max_delay":  c.Retry.MaxDelay,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}

// Timeout returns the parsed per-request timeout.
func (c *Config) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// ParsedBaseDelay returns the parsed retry base delay.
func (c *Retry) ParsedBaseDelay() time.Duration {
	d, _ := time.ParseDuration(c.BaseDelay)
	return d
}

// ParsedMaxDelay returns the parsed retry delay cap.
func (c *Retry) ParsedMaxDelay() time.Duration {
	d, _ := time.ParseDuration(c.MaxDelay)
	return d
}

// ParsedSeverityThreshold returns the parsed paging severity floor.
func (a *Alerting) ParsedSeverityThreshold() drift.Severity {
	s, err := drift.ParseSeverity(a.PagerDuty.SeverityThreshold)
	if err != nil {
		return drift.SeverityWarning
	}
	return s
}

// AutoResolve defaults to true when unset.
func (p *PagerDuty) AutoResolveEnabled() bool {
	if p.AutoResolve == nil {
		return true
	}
	return *p.AutoResolve
}
