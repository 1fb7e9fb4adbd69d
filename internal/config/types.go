package config

import "time"

// Config is the full bridge configuration. It is loaded from a YAML file and
// overlaid with environment variables for secrets.
type Config struct {
	Server ServerConfig `yaml:"server"`

	DonationAlerts DonationAlertsConfig `yaml:"donationalerts"`

	Bridge BridgeConfig `yaml:"bridge"`

	Transcript TranscriptConfig `yaml:"transcript"`

	Notifications NotificationsConfig `yaml:"notifications"`

	Log LogConfig `yaml:"log"`
}

// ServerConfig holds settings for the local UI server.
type ServerConfig struct {
	Port int `yaml:"port"`
	// AllowedOrigins lists origins accepted on the /ws push endpoint in
	// addition to same-origin requests.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// WebDir is the built UI served at /. A directory without index.html
	// disables it.
	WebDir string `yaml:"web_dir,omitempty"`
}

// DonationAlertsConfig holds the OAuth application and optional startup
// credentials.
type DonationAlertsConfig struct {
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	RedirectURI  string `yaml:"redirect_uri,omitempty"`
	AccessToken  string `yaml:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
	// AutoConnect connects at startup when an access token is configured.
	AutoConnect bool `yaml:"auto_connect"`
	// BaseURL overrides the REST API host. Used for testing.
	BaseURL string `yaml:"base_url,omitempty"`
	// SocketURL overrides the Centrifugo WebSocket endpoint.
	SocketURL string `yaml:"socket_url,omitempty"`
}

// BridgeConfig holds connection timing and reconnect policy.
type BridgeConfig struct {
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	ReconnectMinDelay    time.Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
}

// TranscriptConfig holds YouTube caption settings.
type TranscriptConfig struct {
	Languages []string `yaml:"languages"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	FileLevel string `yaml:"file_level"`
	Dir       string `yaml:"dir"`
}

// NotificationsConfig holds all notification provider configurations.
type NotificationsConfig struct {
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Discord  *DiscordConfig  `yaml:"discord,omitempty"`
	Webhook  *WebhookConfig  `yaml:"webhook,omitempty"`
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Token               string   `yaml:"token,omitempty"`
	ChatID              string   `yaml:"chat_id,omitempty"`
	Events              []string `yaml:"events"`
	DisableNotification bool     `yaml:"disable_notification"`
}

// DiscordConfig holds Discord notification settings.
type DiscordConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events"`
}

// WebhookConfig holds generic webhook notification settings.
type WebhookConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Method   string   `yaml:"method"`
	Events   []string `yaml:"events"`
}

// HasStartupToken reports whether the bridge should connect at startup.
func (c *DonationAlertsConfig) HasStartupToken() bool {
	return c.AutoConnect && c.AccessToken != ""
}
