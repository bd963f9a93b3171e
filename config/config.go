package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the notify agent.
type Config struct {
	Push      PushConfig      `mapstructure:"push"`
	API       APIConfig       `mapstructure:"api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Console   ConsoleConfig   `mapstructure:"console"`
	ReadState ReadStateConfig `mapstructure:"read_state"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// PushConfig describes the websocket push channel endpoint and its timings.
type PushConfig struct {
	// Environment selects the endpoint derivation branch: "development" uses
	// plain ws:// against Host, anything else upgrades to wss://.
	Environment string `mapstructure:"environment"`
	Host        string `mapstructure:"host"`
	Path        string `mapstructure:"path"`

	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
}

// APIConfig describes the REST collaborators the aggregator consumes.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig carries the session credential. The token doubles as the push
// channel connection credential (query parameter) and the REST bearer token.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// FeedConfig tunes the aggregator.
type FeedConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ToastTTL        time.Duration `mapstructure:"toast_ttl"`
	// NativeNotify maps the browser notification-permission gate to a switch.
	NativeNotify bool `mapstructure:"native_notify"`
}

// ConsoleConfig configures the local HTTP ops surface.
type ConsoleConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReadStateConfig locates the durable read-state file.
type ReadStateConfig struct {
	Path string `mapstructure:"path"`
}

// LoggerConfig configures slog output.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// LoadConfig merges the optional config file with environment overrides.
// NOTIFY_AUTH_TOKEN overrides auth.token, NOTIFY_PUSH_HOST overrides
// push.host, and so on.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("notify")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		// No file: environment and defaults are enough.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("push.environment", "production")
	v.SetDefault("push.path", "/ws/notifications")
	v.SetDefault("push.connect_timeout", 10*time.Second)
	v.SetDefault("push.ping_interval", 30*time.Second)
	v.SetDefault("push.pong_timeout", 10*time.Second)
	v.SetDefault("push.reconnect_interval", 3*time.Second)
	v.SetDefault("push.max_reconnects", 5)
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("feed.refresh_interval", time.Minute)
	v.SetDefault("feed.toast_ttl", 5*time.Second)
	v.SetDefault("feed.native_notify", false)
	v.SetDefault("console.addr", "127.0.0.1:8790")
	v.SetDefault("read_state.path", "read_notifications.json")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
}

// PushURL derives the websocket endpoint from the environment branch and
// appends the session token as the connection credential.
func (c *PushConfig) PushURL(token string) string {
	scheme := "wss"
	if strings.EqualFold(c.Environment, "development") {
		scheme = "ws"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   c.Host,
		Path:   c.Path,
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String()
}
