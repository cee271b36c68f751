// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 2048, cfg.Agent.MaxTokens)
	assert.Equal(t, "docker", cfg.Run.Backend)
	assert.Equal(t, 20, cfg.Run.MaxIterations)
	assert.Equal(t, 10*time.Minute, cfg.Run.Timeout)
	assert.True(t, cfg.Run.CaptureScreenshots)
	assert.Equal(t, 1280, cfg.Display.Width)
	assert.Equal(t, 800, cfg.Display.Height)
	assert.Equal(t, "uxprobe-run-", cfg.Container.NamePrefix)
	assert.Equal(t, 30*time.Second, cfg.Container.CommandTimeout)
	assert.True(t, cfg.Browser.Headless)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Run Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate(), "default config must be valid")

		invalidIterations := *cfg
		invalidIterations.Run.MaxIterations = 0
		err := invalidIterations.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_iterations must be greater than 0")

		invalidTimeout := *cfg
		invalidTimeout.Run.Timeout = 0
		err = invalidTimeout.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "timeout must be a positive duration")

		invalidBackend := *cfg
		invalidBackend.Run.Backend = "firefox"
		err = invalidBackend.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "backend must be 'docker' or 'chrome'")

		invalidConcurrency := *cfg
		invalidConcurrency.Run.MaxConcurrentRuns = 0
		err = invalidConcurrency.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_concurrent_runs")
	})

	t.Run("Display Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		invalidWidth := *cfg
		invalidWidth.Display.Width = 0
		err := invalidWidth.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "display dimensions must be positive")

		invalidHeight := *cfg
		invalidHeight.Display.Height = -1
		err = invalidHeight.Validate()
		assert.Error(t, err)

		invalidNumber := *cfg
		invalidNumber.Display.Number = -1
		err = invalidNumber.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "display number")
	})

	t.Run("Container Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		noImage := *cfg
		noImage.Container.Image = ""
		err := noImage.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "image is required")

		noPrefix := *cfg
		noPrefix.Container.NamePrefix = ""
		err = noPrefix.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "name_prefix is required")
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Defaults pass validation", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "https://api.anthropic.com", cfg.Agent.BaseURL)
	})

	t.Run("Overrides are applied", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("run.max_iterations", 5)
		v.Set("run.backend", "chrome")
		v.Set("display.width", 1920)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Run.MaxIterations)
		assert.Equal(t, "chrome", cfg.Run.Backend)
		assert.Equal(t, 1920, cfg.Display.Width)
	})

	t.Run("Invalid override is rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("run.max_iterations", -1)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("API key from environment", func(t *testing.T) {
		t.Setenv("UXPROBE_AGENT_API_KEY", "sk-test-key")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "sk-test-key", cfg.Agent.APIKey)
	})
}
