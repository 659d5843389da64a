package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jgoulah/amberbalance/internal/amber"
	"github.com/jgoulah/amberbalance/internal/clock"
	"github.com/jgoulah/amberbalance/internal/usage"
)

const (
	DefaultName         = "Amber Balance"
	DefaultPollInterval = time.Hour
)

// Config holds the application configuration
type Config struct {
	Token          string        `yaml:"token"`
	SiteID         string        `yaml:"site_id,omitempty"`  // Single site override
	SiteIDs        []string      `yaml:"site_ids,omitempty"` // Discovered sites
	Name           string        `yaml:"name,omitempty"`
	SurchargeCents *float64      `yaml:"surcharge_cents,omitempty"` // Daily network surcharge in cents
	Subscription   *float64      `yaml:"subscription,omitempty"`    // Monthly membership fee in dollars
	Timezone       string        `yaml:"timezone,omitempty"`        // IANA name or fixed offset like "+10:00"
	PollInterval   time.Duration `yaml:"poll_interval,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	HomeAssistant  HAConfig      `yaml:"home_assistant,omitempty"`
	MQTT           MQTTConfig    `yaml:"mqtt,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`                     // e.g., "http://homeassistant.local:8123"
	Token        string `yaml:"token"`                   // Long-lived access token
	EntityPrefix string `yaml:"entity_prefix,omitempty"` // e.g., "amber_balance"
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// Load reads the config file, then applies AMBER_* environment overrides.
// A .env file in the working directory is honoured if present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads only the config file, without environment overrides. A
// missing file yields an empty config.
func LoadFile(configPath string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// Empty config if file doesn't exist
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return cfg, nil
}

// SaveSites records discovered site ids in the config file. Values that
// came from the environment are never written back.
func SaveSites(configPath string, sites []string) error {
	cfg, err := LoadFile(configPath)
	if err != nil {
		return err
	}
	cfg.SiteIDs = sites
	return Save(configPath, cfg)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AMBER_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("AMBER_SITE_ID"); v != "" {
		c.SiteID = v
	}
	if v := os.Getenv("AMBER_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate reports every problem with the configuration at once
func (c *Config) Validate() error {
	var errs []error

	if c.Token == "" {
		errs = append(errs, errors.New("token is required (set token in config.yaml or AMBER_TOKEN)"))
	}
	if c.GetSurchargeCents() < 0 {
		errs = append(errs, fmt.Errorf("surcharge_cents must not be negative, got %v", c.GetSurchargeCents()))
	}
	if c.GetSubscription() < 0 {
		errs = append(errs, fmt.Errorf("subscription must not be negative, got %v", c.GetSubscription()))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if _, err := clock.LoadZone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err))
		}
	}
	if c.HomeAssistant.Enabled {
		if c.HomeAssistant.URL == "" {
			errs = append(errs, errors.New("home_assistant.url is required when enabled"))
		}
		if c.HomeAssistant.Token == "" {
			errs = append(errs, errors.New("home_assistant.token is required when enabled"))
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when enabled"))
	}

	return errors.Join(errs...)
}

// Sites returns the sites to monitor: the explicit site_id if set,
// otherwise every discovered site
func (c *Config) Sites() []string {
	if c.SiteID != "" {
		return []string{c.SiteID}
	}
	return c.SiteIDs
}

// GetName returns the display name
func (c *Config) GetName() string {
	if strings.TrimSpace(c.Name) == "" {
		return DefaultName
	}
	return c.Name
}

// GetSurchargeCents returns the daily surcharge in cents
func (c *Config) GetSurchargeCents() float64 {
	if c.SurchargeCents == nil {
		return usage.DefaultSurchargeCents
	}
	return *c.SurchargeCents
}

// GetSubscription returns the monthly subscription in dollars
func (c *Config) GetSubscription() float64 {
	if c.Subscription == nil {
		return usage.DefaultSubscription
	}
	return *c.Subscription
}

// CostModel builds the fixed-charge model from the configured fees
func (c *Config) CostModel() usage.CostModel {
	return usage.CostModel{
		SurchargeCentsPerDay: c.GetSurchargeCents(),
		SubscriptionPerMonth: c.GetSubscription(),
	}
}

// GetPollInterval returns the refresh cadence, hourly by default
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

// GetRequestTimeout returns the per-request HTTP timeout
func (c *Config) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return amber.DefaultTimeout
	}
	return c.RequestTimeout
}

// GetBaseURL returns the API root
func (c *Config) GetBaseURL() string {
	if c.BaseURL == "" {
		return amber.DefaultBaseURL
	}
	return c.BaseURL
}

// Location resolves the metering time zone
func (c *Config) Location() (*time.Location, error) {
	return clock.LoadZone(c.Timezone)
}

// GetEntityPrefix returns the Home Assistant entity prefix
func (h HAConfig) GetEntityPrefix() string {
	if h.EntityPrefix == "" {
		return "amber_balance"
	}
	return h.EntityPrefix
}

// GetTopicPrefix returns the MQTT topic prefix
func (m MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "amber_balance"
	}
	return m.TopicPrefix
}
