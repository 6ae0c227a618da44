// Package config loads joinbridge settings from an optional JSON5 file and
// the environment. Environment variables win over the file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Defaults.
const (
	DefaultConfigFile      = "joinbridge.json5"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultBindingsPath    = "bound-users.json"
	DefaultPendingCapacity = 10000
	DefaultDiscordAPIBase  = "https://discord.com/api"
	DefaultServiceName     = "joinbridge"
)

// Config is the full runtime configuration.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	OAuth     OAuthConfig     `json:"oauth"`
	Join      JoinConfig      `json:"join"`
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store"`
	Pending   PendingConfig   `json:"pending"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

type DiscordConfig struct {
	BotToken string `json:"bot_token,omitempty"`
	APIBase  string `json:"api_base,omitempty"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

// JoinConfig holds the post-join actions. Both fields are hot-reloadable.
type JoinConfig struct {
	AutoRoleID string `json:"auto_role_id,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// GatewayConfig is the callback HTTP listener.
type GatewayConfig struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"` // per client IP on /callback; 0 disables
}

type StoreConfig struct {
	Path          string `json:"path,omitempty"`
	EncryptionKey string `json:"encryption_key,omitempty"`
}

type PendingConfig struct {
	Capacity int `json:"capacity,omitempty"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{APIBase: DefaultDiscordAPIBase},
		Gateway: GatewayConfig{Host: DefaultHost, Port: DefaultPort},
		Store:   StoreConfig{Path: DefaultBindingsPath},
		Pending: PendingConfig{Capacity: DefaultPendingCapacity},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: DefaultServiceName,
		},
	}
}

// Load reads the JSON5 file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using defaults and environment", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	slog.Debug("loaded environment file", "path", path)
	return nil
}

// ApplyEnvOverrides overlays environment variables onto cfg.
func (c *Config) ApplyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("ignoring non-numeric environment value", "key", key, "value", v)
			return
		}
		*dst = n
	}

	envStr("BOT_TOKEN", &c.Discord.BotToken)
	envStr("DISCORD_API_BASE", &c.Discord.APIBase)
	envStr("CLIENT_ID", &c.OAuth.ClientID)
	envStr("CLIENT_SECRET", &c.OAuth.ClientSecret)
	envStr("REDIRECT_URI", &c.OAuth.RedirectURI)
	envStr("AUTO_ROLE_ID", &c.Join.AutoRoleID)
	envStr("WEBHOOK_URL", &c.Join.WebhookURL)
	envStr("HOST", &c.Gateway.Host)
	envInt("PORT", &c.Gateway.Port)
	envInt("CALLBACK_RATE_LIMIT_RPM", &c.Gateway.RateLimitRPM)
	envStr("BOUND_USERS_FILE", &c.Store.Path)
	envStr("BINDING_ENCRYPTION_KEY", &c.Store.EncryptionKey)
	envInt("PENDING_CAPACITY", &c.Pending.Capacity)
	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
}

// Validate reports every missing or invalid setting needed to run the bot.
func (c *Config) Validate() error {
	var missing []string
	if c.Discord.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.OAuth.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.OAuth.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.OAuth.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Gateway.Port))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is empty"))
	}
	if c.Pending.Capacity < 0 {
		errs = append(errs, fmt.Errorf("invalid pending capacity %d", c.Pending.Capacity))
	}
	return errors.Join(errs...)
}

// MaskedCopy returns a copy safe to print: secrets keep only their first
// and last four characters.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	cp.Discord.BotToken = maskSecret(c.Discord.BotToken)
	cp.OAuth.ClientSecret = maskSecret(c.OAuth.ClientSecret)
	cp.Store.EncryptionKey = maskSecret(c.Store.EncryptionKey)
	cp.Join.WebhookURL = maskSecret(c.Join.WebhookURL)
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = maskSecret(v)
		}
	}
	return &cp
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	default:
		return "****"
	}
}

// Hash returns a stable digest of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
