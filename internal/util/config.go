// Package util provides common utilities for fleetpulse.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir       string `mapstructure:"data_dir" validate:"required"`
	LogLevel      string `mapstructure:"log_level" validate:"oneof=debug info notice warn warning error"`
	LogFormat     string `mapstructure:"log_format" validate:"oneof=text json"`
	LogFile       string `mapstructure:"log_file"`
	LogBufferSize int    `mapstructure:"log_buffer_size" validate:"gte=10"`

	// Task intervals
	DiscoveryInterval  time.Duration `mapstructure:"discovery_interval" validate:"gte=1s"`
	HostsCheckInterval time.Duration `mapstructure:"hosts_check_interval" validate:"gte=1s"`
	LogFlushInterval   time.Duration `mapstructure:"log_flush_interval" validate:"gte=1s"`
	AnsibleInterval    time.Duration `mapstructure:"ansible_interval" validate:"gte=1s"`
	PruneInterval      time.Duration `mapstructure:"prune_interval" validate:"gte=1s"`
	HourlySchedule     string        `mapstructure:"hourly_schedule" validate:"required"`
	WeeklySchedule     string        `mapstructure:"weekly_schedule" validate:"required"`

	// Probe settings
	DiscoveryEnabled bool          `mapstructure:"discovery_enabled"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout" validate:"gt=0"`
	PortTimeout      time.Duration `mapstructure:"port_timeout" validate:"gt=0"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"gte=0,lte=20"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	DNSServer        string        `mapstructure:"dns_server"`

	// Ansible run
	AnsibleCommand string        `mapstructure:"ansible_command"`
	AnsibleTimeout time.Duration `mapstructure:"ansible_timeout" validate:"gt=0"`

	// Housekeeping
	RetentionDays   int    `mapstructure:"retention_days" validate:"gte=1"`
	StaleHostDays   int    `mapstructure:"stale_host_days" validate:"gte=0"`
	ReportOutputDir string `mapstructure:"report_output_dir"`

	// Web server
	WebPort int `mapstructure:"web_port" validate:"gte=0,lte=65535"`

	// Shutdown
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".fleetpulse")

	return &Config{
		DataDir:       dataDir,
		LogLevel:      "info",
		LogFormat:     "text",
		LogFile:       filepath.Join(dataDir, "fleetpulse.log"),
		LogBufferSize: 1000,

		DiscoveryInterval:  time.Hour,
		HostsCheckInterval: time.Minute,
		LogFlushInterval:   10 * time.Second,
		AnsibleInterval:    24 * time.Hour,
		PruneInterval:      6 * time.Hour,
		HourlySchedule:     "@hourly",
		WeeklySchedule:     "@weekly",

		DiscoveryEnabled: true,
		PingTimeout:      time.Second,
		PortTimeout:      3 * time.Second,
		MaxRetries:       3,
		RetryDelay:       500 * time.Millisecond,

		AnsibleTimeout: 30 * time.Minute,

		RetentionDays:   30,
		StaleHostDays:   0,
		ReportOutputDir: filepath.Join(dataDir, "reports"),

		WebPort: 8080,

		StopTimeout: 30 * time.Second,
	}
}

// LoadConfig loads configuration from file and environment.
// An empty path searches the data dir and the working directory.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	defaults := *cfg
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfg.DataDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FLEETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Derived paths follow a relocated data dir unless set explicitly.
	if cfg.DataDir != defaults.DataDir {
		if cfg.LogFile == defaults.LogFile {
			cfg.LogFile = filepath.Join(cfg.DataDir, "fleetpulse.log")
		}
		if cfg.ReportOutputDir == defaults.ReportOutputDir {
			cfg.ReportOutputDir = filepath.Join(cfg.DataDir, "reports")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_buffer_size", cfg.LogBufferSize)
	v.SetDefault("discovery_interval", cfg.DiscoveryInterval)
	v.SetDefault("hosts_check_interval", cfg.HostsCheckInterval)
	v.SetDefault("log_flush_interval", cfg.LogFlushInterval)
	v.SetDefault("ansible_interval", cfg.AnsibleInterval)
	v.SetDefault("prune_interval", cfg.PruneInterval)
	v.SetDefault("hourly_schedule", cfg.HourlySchedule)
	v.SetDefault("weekly_schedule", cfg.WeeklySchedule)
	v.SetDefault("discovery_enabled", cfg.DiscoveryEnabled)
	v.SetDefault("ping_timeout", cfg.PingTimeout)
	v.SetDefault("port_timeout", cfg.PortTimeout)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_delay", cfg.RetryDelay)
	v.SetDefault("dns_server", cfg.DNSServer)
	v.SetDefault("ansible_command", cfg.AnsibleCommand)
	v.SetDefault("ansible_timeout", cfg.AnsibleTimeout)
	v.SetDefault("retention_days", cfg.RetentionDays)
	v.SetDefault("stale_host_days", cfg.StaleHostDays)
	v.SetDefault("report_output_dir", cfg.ReportOutputDir)
	v.SetDefault("web_port", cfg.WebPort)
	v.SetDefault("stop_timeout", cfg.StopTimeout)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return WrapError(CodeConfiguration, "invalid configuration", err)
	}
	return nil
}

// LogOptions returns the logger options described by the config.
func (c *Config) LogOptions() LogOptions {
	return LogOptions{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		FilePath:   c.LogFile,
		BufferSize: c.LogBufferSize,
	}
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
