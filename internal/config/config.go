// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	Solver   SolverConfig   `mapstructure:"solver" yaml:"solver"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the Chrome instance driven over CDP.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	Args           []string `mapstructure:"args" yaml:"args"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	KeepOpen       bool     `mapstructure:"keep_open" yaml:"keep_open"`
}

// PlatformConfig holds the remote solving platform connection details.
// The client key is sensitive and is normally supplied via the
// CAPSOLVE_PLATFORM_CLIENT_KEY environment variable.
type PlatformConfig struct {
	ServerURL      string        `mapstructure:"server_url" yaml:"server_url"`
	ClientKey      string        `mapstructure:"client_key" yaml:"-"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// SolverConfig tunes the solve-attempt state machine.
type SolverConfig struct {
	// WaitTimeout bounds how long we wait for the captcha iframe to appear
	// and expand. Zero means wait forever.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	// SettleDelay is applied after the challenge expands, before the first
	// screenshot, so a half-rendered widget is never transmitted.
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	AutoOpensChallenge bool          `mapstructure:"auto_opens_challenge" yaml:"auto_opens_challenge"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ScreenshotInterval time.Duration `mapstructure:"screenshot_interval" yaml:"screenshot_interval"`
	ActionPause        time.Duration `mapstructure:"action_pause" yaml:"action_pause"`
	BackoffDelay       time.Duration `mapstructure:"backoff_delay" yaml:"backoff_delay"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "capsolve")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.keep_open", true)

	// -- Platform --
	v.SetDefault("platform.server_url", "https://hcaptchasolver.com")
	// Registered empty so the CAPSOLVE_PLATFORM_CLIENT_KEY environment
	// variable is visible to Unmarshal; AutomaticEnv only resolves known keys.
	v.SetDefault("platform.client_key", "")
	v.SetDefault("platform.request_timeout", "30s")

	// -- Solver --
	v.SetDefault("solver.wait_timeout", "0s")
	v.SetDefault("solver.settle_delay", "5s")
	v.SetDefault("solver.auto_opens_challenge", false)
	v.SetDefault("solver.poll_interval", "120ms")
	v.SetDefault("solver.screenshot_interval", "200ms")
	v.SetDefault("solver.action_pause", "80ms")
	v.SetDefault("solver.backoff_delay", "1s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with static defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. The client key is
// validated at solve time, not here, so read-only commands work without it.
func (c *Config) Validate() error {
	if c.Platform.ServerURL == "" {
		return fmt.Errorf("platform.server_url is required")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Solver.WaitTimeout < 0 {
		return fmt.Errorf("solver.wait_timeout must not be negative (use 0 to wait forever)")
	}
	if c.Solver.PollInterval <= 0 {
		return fmt.Errorf("solver.poll_interval must be a positive duration")
	}
	if c.Solver.ScreenshotInterval <= 0 {
		return fmt.Errorf("solver.screenshot_interval must be a positive duration")
	}
	return nil
}
