// Package config handles configuration loading and management for skein.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for skein.
type Config struct {
	Swarm      SwarmConfig      `mapstructure:"swarm"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Generation GenerationConfig `mapstructure:"generation"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// SwarmConfig holds coordinator settings.
type SwarmConfig struct {
	// Limit bounds the number of simultaneously active workers.
	Limit int `mapstructure:"limit"`
	// PollInterval is the scheduler loop's polling cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SpawnStagger is the delay inserted between parallel worker spawns.
	SpawnStagger time.Duration `mapstructure:"spawn_stagger"`
}

// WorkspaceConfig holds worker workspace settings.
type WorkspaceConfig struct {
	// Root is the directory under which per-task workspaces are created.
	Root string `mapstructure:"root"`
}

// GenerationConfig holds settings for the external generation service
// used by the generate task body.
type GenerationConfig struct {
	// Model is the generation model identifier.
	Model string `mapstructure:"model"`
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes generation through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g., "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// TUIConfig holds dashboard display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (SKEIN_*, ANTHROPIC_API_KEY)
// 2. Project config (.skein.yaml in current directory or a parent)
// 3. User config (~/.config/skein/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SKEIN")
	v.BindEnv("generation.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("swarm.limit", "SKEIN_LIMIT")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Generation.APIKey = os.ExpandEnv(cfg.Generation.APIKey)

	if cfg.Swarm.Limit < 1 {
		return nil, fmt.Errorf("swarm.limit must be a positive integer, got %d", cfg.Swarm.Limit)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Generation.APIKey = os.ExpandEnv(cfg.Generation.APIKey)

	if cfg.Swarm.Limit < 1 {
		return nil, fmt.Errorf("swarm.limit must be a positive integer, got %d", cfg.Swarm.Limit)
	}

	return cfg, nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Swarm: SwarmConfig{
			Limit:        4,
			PollInterval: 250 * time.Millisecond,
			SpawnStagger: 0,
		},
		Workspace: WorkspaceConfig{
			Root: ".skein/workspaces",
		},
		Generation: GenerationConfig{
			Model: "claude-sonnet-4-20250514",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("swarm.limit", 4)
	v.SetDefault("swarm.poll_interval", "250ms")
	v.SetDefault("swarm.spawn_stagger", "0s")
	v.SetDefault("workspace.root", ".skein/workspaces")
	v.SetDefault("generation.model", "claude-sonnet-4-20250514")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.use_aws_bedrock", false)
	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for skein.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "skein")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "skein")
	}
	return filepath.Join(home, ".config", "skein")
}

// findProjectConfig searches for .skein.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".skein.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
