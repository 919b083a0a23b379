package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath   = "config/sco-discord-auth.yaml"
	DefaultWebsocketURL = "ws://localhost:25566"

	envPrefix = "SCO_BRIDGE_"
)

// AuthOptions configures the credential presented when dialing the control plane.
type AuthOptions struct {
	HMACSecret     string        `yaml:"hmacSecret,omitempty" env:"HMAC_SECRET"`
	HMACSecretFile string        `yaml:"hmacSecretFile,omitempty" env:"HMAC_SECRET_FILE"`
	TokenTTL       time.Duration `yaml:"tokenTTL,omitempty" env:"TOKEN_TTL"`
}

// Enabled reports whether a dial credential is configured.
func (a AuthOptions) Enabled() bool {
	return a.HMACSecret != "" || a.HMACSecretFile != ""
}

type Config struct {
	WebsocketURL               string        `yaml:"websocketUrl" env:"WEBSOCKET_URL"`
	ServerName                 string        `yaml:"serverName" env:"SERVER_NAME"`
	ReconnectDelay             time.Duration `yaml:"reconnectDelay" env:"RECONNECT_DELAY"`
	ReconnectCooldown          time.Duration `yaml:"reconnectCooldown" env:"RECONNECT_COOLDOWN"`
	ChannelDescriptionInterval time.Duration `yaml:"channelDescriptionInterval" env:"CHANNEL_DESCRIPTION_INTERVAL"`
	AuthTimeout                time.Duration `yaml:"authTimeout" env:"AUTH_TIMEOUT"`
	LogLevel                   string        `yaml:"logLevel" env:"LOG_LEVEL"`
	Auth                       AuthOptions   `yaml:"auth,omitempty" envPrefix:"AUTH_"`
}

func DefaultConfig() *Config {
	return &Config{
		WebsocketURL:               DefaultWebsocketURL,
		ServerName:                 "minecraft",
		ReconnectDelay:             defaultReconnectDelay,
		ReconnectCooldown:          defaultReconnectCooldown,
		ChannelDescriptionInterval: defaultDescriptionInterval,
		AuthTimeout:                defaultAuthTimeout,
		LogLevel:                   "info",
	}
}

// LoadConfig reads the YAML file at path, applies SCO_BRIDGE_* environment
// overrides and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreateConfig never fails: a missing file is created with defaults and
// an unreadable or invalid one is replaced in memory by defaults.
func LoadOrCreateConfig(path string, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := WriteConfig(path, cfg); err != nil {
			logger.Error("failed to write default config", "path", path, "error", err)
		} else {
			logger.Info("created default config", "path", path)
		}
		if err := applyEnv(cfg); err != nil {
			logger.Warn("ignoring environment overrides", "error", err)
		}
		return cfg
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Error("failed to load config, using defaults", "error", err)
		cfg = DefaultConfig()
		if err := applyEnv(cfg); err != nil {
			logger.Warn("ignoring environment overrides", "error", err)
		}
		return cfg
	}
	logger.Info("loaded config from file", "path", path)
	return cfg
}

// WriteConfig stores cfg at path, creating parent directories.
func WriteConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.WebsocketURL == "" {
		return errors.New("websocketUrl is required")
	}
	u, err := url.Parse(c.WebsocketURL)
	if err != nil {
		return fmt.Errorf("websocketUrl: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("websocketUrl: unsupported scheme %q", u.Scheme)
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.ReconnectCooldown <= 0 {
		c.ReconnectCooldown = defaultReconnectCooldown
	}
	if c.ChannelDescriptionInterval <= 0 {
		c.ChannelDescriptionInterval = defaultDescriptionInterval
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = defaultAuthTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// ParseLogLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
