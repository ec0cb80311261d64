package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Outbound provider identifiers.
const (
	OutboundSMTP = "smtp"
	OutboundSES  = "ses"
	OutboundMbox = "mbox"
)

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "json" or "text".
	Format string `mapstructure:"format" yaml:"format"`
}

// JobsConfig controls the background job dispatcher.
type JobsConfig struct {
	// TickSec is how often (in seconds) the job list is scanned.
	TickSec int `mapstructure:"tick_sec" yaml:"tick_sec"`

	// MaxConcurrent bounds the number of jobs running at once.
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`

	// MaintenanceWindowStart is the UTC hour at which a four hour window
	// for time-insensitive jobs opens. A negative value disables the window.
	MaintenanceWindowStart int `mapstructure:"maintenance_window_start" yaml:"maintenance_window_start"`
}

// ClassifierConfig controls importance classifier training.
type ClassifierConfig struct {
	MinMessages  int `mapstructure:"min_messages" yaml:"min_messages"`
	MaxMessages  int `mapstructure:"max_messages" yaml:"max_messages"`
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`
}

// SESConfig holds the AWS SES outbound settings.
type SESConfig struct {
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// OutboundConfig selects how messages leave the system.
type OutboundConfig struct {
	// Provider is one of the Outbound* constants.
	Provider string    `mapstructure:"provider" yaml:"provider"`
	MboxPath string    `mapstructure:"mbox_path" yaml:"mbox_path"`
	SES      SESConfig `mapstructure:"ses" yaml:"ses"`
}

// KeyringConfig configures the credential store.
type KeyringConfig struct {
	Service string `mapstructure:"service" yaml:"service"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`

	// FilePassword encrypts the file backend. It is read from
	// MAILJOBS_KEYRING_PASSWORD and never written back by SaveConfig;
	// when empty the password is prompted for on the terminal.
	FilePassword string `mapstructure:"file_password" yaml:"-"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Jobs       JobsConfig       `mapstructure:"jobs" yaml:"jobs"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Outbound   OutboundConfig   `mapstructure:"outbound" yaml:"outbound"`
	Keyring    KeyringConfig    `mapstructure:"keyring" yaml:"keyring"`

	// Hostname is used as the right-hand side of generated Message-IDs.
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailjobs/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailjobs", "config.yaml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailjobs")
}

// setDefaults registers every key so that environment overrides and
// missing YAML keys resolve to sensible values.
func setDefaults(v *viper.Viper) {
	dir := defaultDataDir()

	v.SetDefault("database.path", filepath.Join(dir, "mailjobs.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jobs.tick_sec", 300)
	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("jobs.maintenance_window_start", -1)
	v.SetDefault("classifier.min_messages", 30)
	v.SetDefault("classifier.max_messages", 300)
	v.SetDefault("classifier.lookback_days", 90)
	v.SetDefault("outbound.provider", OutboundSMTP)
	v.SetDefault("outbound.mbox_path", filepath.Join(dir, "outbox.mbox"))
	v.SetDefault("outbound.ses.region", "")
	v.SetDefault("outbound.ses.access_key_id", "")
	v.SetDefault("outbound.ses.secret_access_key", "")
	v.SetDefault("keyring.service", "mailjobs")
	v.SetDefault("keyring.file_dir", filepath.Join(dir, "credentials"))
	v.SetDefault("hostname", "localhost")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values can be overridden with MAILJOBS_* environment variables, e.g.
// MAILJOBS_OUTBOUND_PROVIDER. If the file does not exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	_ = v.BindEnv("keyring.file_password", "MAILJOBS_KEYRING_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *AppConfig) Validate() error {
	switch c.Outbound.Provider {
	case OutboundSMTP, OutboundMbox:
	case OutboundSES:
		if c.Outbound.SES.Region == "" {
			return fmt.Errorf("outbound.ses.region is required for the ses provider")
		}
	default:
		return fmt.Errorf("unknown outbound provider %q", c.Outbound.Provider)
	}

	if c.Jobs.TickSec <= 0 {
		c.Jobs.TickSec = 300
	}
	if c.Jobs.MaxConcurrent <= 0 {
		c.Jobs.MaxConcurrent = 1
	}
	if c.Jobs.MaintenanceWindowStart > 23 {
		return fmt.Errorf(
			"jobs.maintenance_window_start must be below 24, got %d",
			c.Jobs.MaintenanceWindowStart,
		)
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("log", cfg.Log)
	v.Set("jobs", cfg.Jobs)
	v.Set("classifier", cfg.Classifier)
	v.Set("outbound", cfg.Outbound)
	v.Set("keyring", cfg.Keyring)
	v.Set("hostname", cfg.Hostname)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
