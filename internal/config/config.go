// Package config loads and validates the checklistbot configuration: a YAML
// file with environment expansion, .env loading, defaults and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/model"
)

// Config represents the application configuration
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Logging LoggingConfig `yaml:"logging"`
	Reset   ResetConfig   `yaml:"reset"`
	Metrics MetricsConfig `yaml:"metrics"`
	Plans   []PlanConfig  `yaml:"plans,omitempty"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ResetConfig drives the daily-reset scheduler. DefaultTime and
// DefaultTimezone apply to users who never changed their settings; users with
// their own daily_reset_time/timezone are honored individually. TickInterval
// is how often the scheduler wakes up to check reset windows.
type ResetConfig struct {
	DefaultTime     string        `yaml:"default_time"`
	DefaultTimezone string        `yaml:"default_timezone"`
	TickInterval    time.Duration `yaml:"tick_interval"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// PlanConfig is one row of the purchasable plan table.
type PlanConfig struct {
	Tier  string `yaml:"tier"`
	Days  int    `yaml:"days"`
	Price string `yaml:"price,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env files if present; real environment always wins.
	_ = godotenv.Load(".env", ".env.local")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.New(errors.CategoryConfig, errors.SeverityFatal,
			"configuration file not found").WithContext("path", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.IOError(err, "failed to read config file").WithContext("path", configPath)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal,
			"failed to unmarshal config")
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if v := os.Getenv("CHECKLISTBOT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
	if c.Reset.DefaultTime == "" {
		c.Reset.DefaultTime = "08:00"
	}
	if c.Reset.DefaultTimezone == "" {
		c.Reset.DefaultTimezone = "UTC"
	}
	if c.Reset.TickInterval <= 0 {
		c.Reset.TickInterval = time.Minute
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9180"
	}
}

// Validate checks fields the defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := time.Parse("15:04", c.Reset.DefaultTime); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal,
			fmt.Sprintf("reset.default_time %q is not HH:MM", c.Reset.DefaultTime))
	}
	if _, err := time.LoadLocation(c.Reset.DefaultTimezone); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal,
			fmt.Sprintf("reset.default_timezone %q is not a valid IANA zone", c.Reset.DefaultTimezone))
	}
	for _, p := range c.Plans {
		if _, ok := model.ParsePlanTier(p.Tier); !ok {
			return errors.New(errors.CategoryConfig, errors.SeverityFatal,
				fmt.Sprintf("plans: unknown tier %q", p.Tier))
		}
		if p.Days <= 0 {
			return errors.New(errors.CategoryConfig, errors.SeverityFatal,
				fmt.Sprintf("plans: tier %q must grant a positive number of days", p.Tier))
		}
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	starter := `# checklistbot configuration
data_dir: ./data

logging:
  level: info   # debug|info|warn|error
  format: text  # text|json

reset:
  default_time: "08:00"
  default_timezone: UTC
  tick_interval: 1m

metrics:
  enabled: false
  listen: ":9180"

# Plan tiers are business configuration. Omit to use the built-in table.
plans:
  - tier: basic
    days: 7
    price: "$0.99"
  - tier: standard
    days: 30
    price: "$2.99"
  - tier: premium
    days: 90
    price: "$6.99"
  - tier: ultimate
    days: 365
    price: "$19.99"
`
	if err := os.WriteFile(configPath, []byte(starter), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
