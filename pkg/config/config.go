package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	DB     DBConfig     `yaml:"db"`
	Server ServerConfig `yaml:"server"`
	Story  StoryConfig  `yaml:"story"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds journal database settings.
type DBConfig struct {
	Path      string   `yaml:"path"`
	Enabled   bool     `yaml:"enabled"`
	Retention Duration `yaml:"retention"` // 0 keeps every run
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StoryConfig holds settings for the quest being played.
type StoryConfig struct {
	Asset       string   `yaml:"asset"`        // path to the quest YAML
	Seed        uint64   `yaml:"seed"`         // 0 picks events at random
	AutoAdvance bool     `yaml:"auto_advance"` // resolve timed events on a timer
	DefaultWait Duration `yaml:"default_wait"` // wait for timed events without one
	Watch       bool     `yaml:"watch"`        // reload the asset when it changes
}

// envOverrides lists the environment variables that take precedence over the file.
type envOverrides struct {
	Asset    string `env:"QUESTGRAPH_ASSET"`
	Seed     uint64 `env:"QUESTGRAPH_SEED"`
	Address  string `env:"QUESTGRAPH_ADDR"`
	DBPath   string `env:"QUESTGRAPH_DB"`
	LogLevel string `env:"QUESTGRAPH_LOG_LEVEL"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:      "./data/journal.db",
			Enabled:   true,
			Retention: Duration(30 * 24 * time.Hour),
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Story: StoryConfig{
			Asset:       "./quests/wanderer.yaml",
			AutoAdvance: true,
			DefaultWait: Duration(2 * time.Second),
			Watch:       true,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Values from a .env file and QUESTGRAPH_* variables override the file but are never saved back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// .env is optional
	_ = godotenv.Load()

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if o.Asset != "" {
		cfg.Story.Asset = o.Asset
	}
	if o.Seed != 0 {
		cfg.Story.Seed = o.Seed
	}
	if o.Address != "" {
		cfg.Server.Address = o.Address
	}
	if o.DBPath != "" {
		cfg.DB.Path = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Log.Server.Level = o.LogLevel
	}
	return nil
}

var validLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	for _, s := range []LogSettings{c.Log.Server, c.Log.Events} {
		if !isValidLevel(s.Level) {
			return fmt.Errorf("invalid log level '%s': must be one of %s", s.Level, strings.Join(validLevels, ", "))
		}
	}
	if c.Story.DefaultWait < 0 {
		return fmt.Errorf("invalid default_wait %s: must not be negative", c.Story.DefaultWait.Std())
	}
	if c.DB.Retention < 0 {
		return fmt.Errorf("invalid retention %s: must not be negative", c.DB.Retention.Std())
	}
	if c.Story.Asset == "" {
		return fmt.Errorf("story.asset must be set")
	}
	return nil
}

func isValidLevel(level string) bool {
	for _, l := range validLevels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# questgraph Configuration
# ------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# Environment overrides: QUESTGRAPH_ASSET, QUESTGRAPH_SEED, QUESTGRAPH_ADDR,
#   QUESTGRAPH_DB, QUESTGRAPH_LOG_LEVEL (also read from .env)

`)
	data = append(header, data...)

	reLevel := regexp.MustCompile(`(?m)^(\s+)level:`)
	data = reLevel.ReplaceAll(data, []byte("${1}# Options: DEBUG, INFO, WARN, ERROR\n${1}level:"))

	reSeed := regexp.MustCompile(`(?m)^(\s+)seed:`)
	data = reSeed.ReplaceAll(data, []byte("${1}# 0 picks events at random; any other value replays the same selection\n${1}seed:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
