// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Run       RunConfig       `mapstructure:"run" yaml:"run"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	Container ContainerConfig `mapstructure:"container" yaml:"container"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig controls the zap logger bootstrap.
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

// AgentConfig holds settings for the remote vision agent.
type AgentConfig struct {
	Model             string        `mapstructure:"model" yaml:"model"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// RunConfig holds per-run execution settings.
type RunConfig struct {
	TargetURL          string        `mapstructure:"target_url" yaml:"target_url"`
	Backend            string        `mapstructure:"backend" yaml:"backend"`
	MaxIterations      int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CaptureScreenshots bool          `mapstructure:"capture_screenshots" yaml:"capture_screenshots"`
	MaxConcurrentRuns  int64         `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
}

// DisplayConfig describes the virtual display both backends render to.
type DisplayConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
	Number int `mapstructure:"number" yaml:"number"`
}

// ContainerConfig holds settings for the container-backed execution environment.
type ContainerConfig struct {
	Image            string        `mapstructure:"image" yaml:"image"`
	NamePrefix       string        `mapstructure:"name_prefix" yaml:"name_prefix"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
}

// BrowserConfig holds settings for the directly-managed headless browser.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uxprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.model", "claude-sonnet-4-20250514")
	v.SetDefault("agent.max_tokens", 2048)
	v.SetDefault("agent.base_url", "https://api.anthropic.com")
	v.SetDefault("agent.api_timeout", "120s")
	v.SetDefault("agent.requests_per_second", 1.0)

	// -- Run --
	v.SetDefault("run.target_url", "http://localhost:3000")
	v.SetDefault("run.backend", "docker")
	v.SetDefault("run.max_iterations", 20)
	v.SetDefault("run.timeout", "10m")
	v.SetDefault("run.capture_screenshots", true)
	v.SetDefault("run.max_concurrent_runs", 3)

	// -- Display --
	v.SetDefault("display.width", 1280)
	v.SetDefault("display.height", 800)
	v.SetDefault("display.number", 99)

	// -- Container --
	v.SetDefault("container.image", "ubuntu:22.04")
	v.SetDefault("container.name_prefix", "uxprobe-run-")
	v.SetDefault("container.command_timeout", "30s")
	v.SetDefault("container.readiness_timeout", "60s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("agent.api_key", "UXPROBE_AGENT_API_KEY", "ANTHROPIC_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("run configuration invalid: %w", err)
	}
	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display configuration invalid: %w", err)
	}
	if err := c.Container.Validate(); err != nil {
		return fmt.Errorf("container configuration invalid: %w", err)
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent.max_tokens must be a positive integer")
	}
	return nil
}

// Validate checks the per-run execution settings.
func (r *RunConfig) Validate() error {
	if r.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be greater than 0")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if r.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("max_concurrent_runs must be greater than 0")
	}
	switch r.Backend {
	case "docker", "chrome":
	default:
		return fmt.Errorf("backend must be 'docker' or 'chrome', got %q", r.Backend)
	}
	return nil
}

// Validate checks the display geometry.
func (d *DisplayConfig) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("display dimensions must be positive, got %dx%d", d.Width, d.Height)
	}
	if d.Number < 0 {
		return fmt.Errorf("display number must be non-negative")
	}
	return nil
}

// Validate checks the container environment settings.
func (c *ContainerConfig) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.NamePrefix == "" {
		return fmt.Errorf("name_prefix is required")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be a positive duration")
	}
	return nil
}
