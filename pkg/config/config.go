package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Typing  TypingConfig  `mapstructure:"typing"`
	Logging LoggingConfig `mapstructure:"logging"`
	History HistoryConfig `mapstructure:"history"`
}

// APIConfig holds backend connection settings
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	ViewerURL  string        `mapstructure:"viewer_url"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"`
}

// ChatConfig holds streaming chat settings
type ChatConfig struct {
	Model               string        `mapstructure:"model"`
	ThinkingDebounce    time.Duration `mapstructure:"-"`
	ThinkingDebounceStr string        `mapstructure:"thinking_debounce"`
	CitationIDFields    []string      `mapstructure:"citation_id_fields"`
	ShowThinking        bool          `mapstructure:"show_thinking"`
}

// TypingConfig holds typing animation settings
type TypingConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	WordThreshold int     `mapstructure:"word_threshold"`
	Speed         float64 `mapstructure:"speed"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// HistoryConfig holds the local chat history cache settings
type HistoryConfig struct {
	File string `mapstructure:"file"`
}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Set replaces the global config instance
func Set(c *Config) {
	cfg = c
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.jurinex")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, "jurinex"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("JURINEX")
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// viper leaves string durations alone
	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = loaded
	return loaded, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8080")
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.viewer_url", "")
	viper.SetDefault("api.timeout", "30s")

	viper.SetDefault("chat.model", "gemini-2.5-flash")
	viper.SetDefault("chat.thinking_debounce", "10ms")
	viper.SetDefault("chat.citation_id_fields", []string{"chunk_id", "id", "chunkId"})
	viper.SetDefault("chat.show_thinking", true)

	viper.SetDefault("typing.enabled", true)
	viper.SetDefault("typing.word_threshold", 3)
	viper.SetDefault("typing.speed", 1.0)

	viper.SetDefault("logging.level", "warn")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.console", true)

	viper.SetDefault("history.file", "./.jurinex/chat_history.json")
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("api.base_url", "JURINEX_BASE_URL")
	viper.BindEnv("api.token", "JURINEX_TOKEN")
	viper.BindEnv("api.viewer_url", "JURINEX_VIEWER_URL")
	viper.BindEnv("chat.model", "JURINEX_MODEL")
	viper.BindEnv("logging.level", "JURINEX_LOG_LEVEL")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.API.TimeoutStr != "" {
		d, err := time.ParseDuration(c.API.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid api.timeout: %w", err)
		}
		c.API.Timeout = d
	} else if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}

	if c.Chat.ThinkingDebounceStr != "" {
		d, err := time.ParseDuration(c.Chat.ThinkingDebounceStr)
		if err != nil {
			return fmt.Errorf("invalid chat.thinking_debounce: %w", err)
		}
		c.Chat.ThinkingDebounce = d
	} else if c.Chat.ThinkingDebounce == 0 {
		c.Chat.ThinkingDebounce = 10 * time.Millisecond
	}

	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
