// Package config handles loading, parsing, and validating the YAML
// configuration file for the bridge. Secrets may be supplied through
// environment variables or a .env file instead of the YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
)

// DefaultConfigPath is the default location of the configuration file.
const DefaultConfigPath = "config.yaml"

// DefaultPort is the UI server port the web UI expects.
const DefaultPort = 8080

// DefaultWebDir is where the UI build output lands.
const DefaultWebDir = "dist"

// LoadDotEnv loads environment variables from path without overriding
// variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from path, then overlays environment variables.
// When optional is true a missing file yields the defaults.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.WebDir == "" {
		cfg.Server.WebDir = DefaultWebDir
	}

	da := &cfg.DonationAlerts
	if da.RedirectURI == "" {
		da.RedirectURI = constants.DefaultRedirectURI
	}
	if da.BaseURL == "" {
		da.BaseURL = constants.DonationAlertsURL
	}
	if da.SocketURL == "" {
		da.SocketURL = constants.CentrifugoURL
	}

	b := &cfg.Bridge
	if b.HandshakeTimeout <= 0 {
		b.HandshakeTimeout = constants.DefaultHandshakeTimeout
	}
	if b.ReconnectMinDelay < constants.DefaultReconnectMinDelay {
		b.ReconnectMinDelay = constants.DefaultReconnectMinDelay
	}
	if b.ReconnectMaxDelay <= 0 {
		b.ReconnectMaxDelay = constants.DefaultReconnectMaxDelay
	}
	if b.ReconnectMaxDelay < b.ReconnectMinDelay {
		b.ReconnectMaxDelay = b.ReconnectMinDelay
	}
	if b.PingInterval <= 0 {
		b.PingInterval = constants.DefaultPingInterval
	}
	if b.PongTimeout <= 0 {
		b.PongTimeout = constants.DefaultPongTimeout
	}

	if len(cfg.Transcript.Languages) == 0 {
		cfg.Transcript.Languages = append([]string(nil), constants.DefaultTranscriptLanguages...)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
	if cfg.Log.FileLevel == "" {
		cfg.Log.FileLevel = "DEBUG"
	}
}

// applyEnvOverrides overlays environment variables for secrets and the port.
func applyEnvOverrides(cfg *Config) {
	da := &cfg.DonationAlerts
	setString(&da.ClientID, "DA_CLIENT_ID")
	setString(&da.ClientSecret, "DA_CLIENT_SECRET")
	setString(&da.RedirectURI, "DA_REDIRECT_URI")
	setString(&da.AccessToken, "DA_ACCESS_TOKEN")
	setString(&da.RefreshToken, "DA_REFRESH_TOKEN")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setString(&cfg.Log.Level, "LOG_LEVEL")

	if cfg.Notifications.Telegram != nil {
		setString(&cfg.Notifications.Telegram.Token, "TELEGRAM_TOKEN")
		setString(&cfg.Notifications.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	}
	if cfg.Notifications.Discord != nil {
		setString(&cfg.Notifications.Discord.WebhookURL, "DISCORD_WEBHOOK")
	}
	if cfg.Notifications.Webhook != nil {
		setString(&cfg.Notifications.Webhook.Endpoint, "WEBHOOK_URL")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for common errors.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	if cfg.Bridge.MaxReconnectAttempts < 0 {
		return fmt.Errorf("bridge.max_reconnect_attempts must be >= 0, got %d", cfg.Bridge.MaxReconnectAttempts)
	}

	if cfg.DonationAlerts.AutoConnect && cfg.DonationAlerts.AccessToken == "" {
		return fmt.Errorf("donationalerts.auto_connect is set but no access token is configured (use env var DA_ACCESS_TOKEN)")
	}

	if cfg.Notifications.Telegram != nil && cfg.Notifications.Telegram.Enabled {
		if cfg.Notifications.Telegram.Token == "" || cfg.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("telegram enabled but token or chat_id not set (use env vars TELEGRAM_TOKEN and TELEGRAM_CHAT_ID)")
		}
	}

	if cfg.Notifications.Discord != nil && cfg.Notifications.Discord.Enabled {
		if cfg.Notifications.Discord.WebhookURL == "" {
			return fmt.Errorf("discord enabled but webhook_url not set (use env var DISCORD_WEBHOOK)")
		}
	}

	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Enabled {
		if cfg.Notifications.Webhook.Endpoint == "" {
			return fmt.Errorf("webhook enabled but endpoint not set (use env var WEBHOOK_URL)")
		}
	}

	return nil
}
