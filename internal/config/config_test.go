package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingOptionalFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultWebDir, cfg.Server.WebDir)
	assert.Equal(t, constants.DefaultRedirectURI, cfg.DonationAlerts.RedirectURI)
	assert.Equal(t, constants.CentrifugoURL, cfg.DonationAlerts.SocketURL)
	assert.Equal(t, constants.DefaultHandshakeTimeout, cfg.Bridge.HandshakeTimeout)
	assert.Equal(t, time.Second, cfg.Bridge.ReconnectMinDelay)
	assert.Equal(t, 60*time.Second, cfg.Bridge.ReconnectMaxDelay)
	assert.Equal(t, 25*time.Second, cfg.Bridge.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.Bridge.PongTimeout)
	assert.Equal(t, []string{"ru", "en"}, cfg.Transcript.Languages)
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingRequiredFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
donationalerts:
  client_id: "123"
  redirect_uri: http://localhost:9090/callback
bridge:
  handshake_timeout: 5s
  reconnect_min_delay: 100ms
  reconnect_max_delay: 30s
  max_reconnect_attempts: 4
transcript:
  languages: [en]
`)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "123", cfg.DonationAlerts.ClientID)
	assert.Equal(t, "http://localhost:9090/callback", cfg.DonationAlerts.RedirectURI)
	assert.Equal(t, 5*time.Second, cfg.Bridge.HandshakeTimeout)
	// The reconnect floor is never below one second.
	assert.Equal(t, time.Second, cfg.Bridge.ReconnectMinDelay)
	assert.Equal(t, 30*time.Second, cfg.Bridge.ReconnectMaxDelay)
	assert.Equal(t, 4, cfg.Bridge.MaxReconnectAttempts)
	assert.Equal(t, []string{"en"}, cfg.Transcript.Languages)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DA_CLIENT_ID", "env-id")
	t.Setenv("DA_CLIENT_SECRET", "env-secret")
	t.Setenv("DA_ACCESS_TOKEN", "env-token")
	t.Setenv("PORT", "8181")
	t.Setenv("DISCORD_WEBHOOK", "https://discord.example/hook")

	path := writeFile(t, "config.yaml", `
donationalerts:
  client_id: file-id
notifications:
  discord:
    enabled: true
    events: [DONATION]
`)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.DonationAlerts.ClientID)
	assert.Equal(t, "env-secret", cfg.DonationAlerts.ClientSecret)
	assert.Equal(t, "env-token", cfg.DonationAlerts.AccessToken)
	assert.Equal(t, 8181, cfg.Server.Port)
	require.NotNil(t, cfg.Notifications.Discord)
	assert.Equal(t, "https://discord.example/hook", cfg.Notifications.Discord.WebhookURL)
	assert.NoError(t, Validate(cfg))
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "DA_REFRESH_TOKEN=from-dotenv\n")
	t.Setenv("DA_REFRESH_TOKEN", "")
	require.NoError(t, os.Unsetenv("DA_REFRESH_TOKEN"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("DA_REFRESH_TOKEN"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
		require.NoError(t, err)
		return cfg
	}

	t.Run("auto connect without token", func(t *testing.T) {
		cfg := base()
		cfg.DonationAlerts.AutoConnect = true
		cfg.DonationAlerts.AccessToken = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("negative max attempts", func(t *testing.T) {
		cfg := base()
		cfg.Bridge.MaxReconnectAttempts = -1
		assert.Error(t, Validate(cfg))
	})

	t.Run("telegram without token", func(t *testing.T) {
		cfg := base()
		cfg.Notifications.Telegram = &TelegramConfig{Enabled: true, ChatID: "1"}
		assert.Error(t, Validate(cfg))
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 70000
		assert.Error(t, Validate(cfg))
	})
}
