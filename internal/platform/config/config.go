package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	PermissionModeGuilds = "guilds"
	PermissionModeRoles  = "roles"

	AccessModeOAuth    = "oauth"
	AccessModeApproval = "approval"

	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"3000"`
	AppURL string `env:"APP_URL" default:"http://localhost:3000"`

	DiscordClientID     string   `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string   `env:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURI  string   `env:"DISCORD_REDIRECT_URI"`
	DiscordBotToken     string   `env:"DISCORD_BOT_TOKEN"`
	DiscordServerID     string   `env:"DISCORD_SERVER_ID"`
	DiscordWebhookURL   string   `env:"DISCORD_WEBHOOK_URL"`
	AdminRoleIDs        []string `env:"ADMIN_ROLE_IDS"`
	ModeratorRoleIDs    []string `env:"MODERATOR_ROLE_IDS"`

	PermissionMode string `env:"PERMISSION_MODE" default:"guilds"`
	AccessMode     string `env:"ACCESS_MODE" default:"oauth"`

	SessionSecret       string        `env:"SESSION_SECRET"`
	SessionBackend      string        `env:"SESSION_BACKEND" default:"file"`
	SessionDir          string        `env:"SESSION_DIR" default:"sessions"`
	SessionTTL          time.Duration `env:"SESSION_TTL" default:"24h"`
	SessionRolling      bool          `env:"SESSION_ROLLING" default:"false"`
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" default:"1h"`

	ConfigBackend string `env:"CONFIG_BACKEND" default:"file"`
	DataDir       string `env:"DATA_DIR" default:"data"`
	RedisURL      string `env:"REDIS_URL"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" default:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" default:"info"`
	LogFormat       string        `env:"LOG_FORMAT" default:"text"`

	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" default:"1"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" default:"10"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// UsesRedis reports whether any backend needs REDIS_URL.
func (c *Config) UsesRedis() bool {
	return c.SessionBackend == BackendRedis || c.ConfigBackend == BackendRedis
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DISCORD_CLIENT_ID", cfg.DiscordClientID},
		{"DISCORD_CLIENT_SECRET", cfg.DiscordClientSecret},
		{"DISCORD_REDIRECT_URI", cfg.DiscordRedirectURI},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if _, err := url.ParseRequestURI(cfg.DiscordRedirectURI); err != nil {
		return fmt.Errorf("DISCORD_REDIRECT_URI must be an absolute URL: %w", err)
	}

	if cfg.AppEnv == "production" && len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters in production")
	}

	switch cfg.PermissionMode {
	case PermissionModeGuilds:
	case PermissionModeRoles:
		if cfg.DiscordServerID == "" {
			return errors.New("DISCORD_SERVER_ID is required when PERMISSION_MODE=roles")
		}
	default:
		return fmt.Errorf("PERMISSION_MODE must be %q or %q, got %q", PermissionModeGuilds, PermissionModeRoles, cfg.PermissionMode)
	}

	if cfg.AccessMode != AccessModeOAuth && cfg.AccessMode != AccessModeApproval {
		return fmt.Errorf("ACCESS_MODE must be %q or %q, got %q", AccessModeOAuth, AccessModeApproval, cfg.AccessMode)
	}

	switch cfg.SessionBackend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("SESSION_BACKEND must be file, redis or memory, got %q", cfg.SessionBackend)
	}

	if cfg.ConfigBackend != BackendFile && cfg.ConfigBackend != BackendRedis {
		return fmt.Errorf("CONFIG_BACKEND must be file or redis, got %q", cfg.ConfigBackend)
	}

	if cfg.UsesRedis() && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis backend")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"SESSION_TTL", cfg.SessionTTL},
		{"SESSION_REAP_INTERVAL", cfg.SessionReapInterval},
		{"PROVIDER_TIMEOUT", cfg.ProviderTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if cfg.AuthRateLimit <= 0 || cfg.AuthRateBurst < 1 {
		return errors.New("AUTH_RATE_LIMIT must be positive and AUTH_RATE_BURST at least 1")
	}

	return nil
}
