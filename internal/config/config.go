// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/smartshop/config.yaml)
//  3. Default values
//
// Security: sensitive values (database password) are never logged; MarshalJSON
// masks them explicitly. Validation is fail-fast: Load returns an error before
// any component sees a bad value.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRateLimit indicates the chat rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidIterationLimit indicates the orchestration iteration cap is out of range.
	ErrInvalidIterationLimit = errors.New("invalid iteration limit")

	// ErrInvalidToolCallLimit indicates the per-iteration tool call cap is out of range.
	ErrInvalidToolCallLimit = errors.New("invalid tool call limit")

	// ErrInvalidHistoryWindow indicates the conversation history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Orchestration bounds. MaxIterations and ToolCallLimit are structural caps
// on the model/tool loop; HistoryWindow bounds the context assembled per request.
const (
	MaxAllowedIterations   = 10
	MaxAllowedToolCalls    = 10
	MaxAllowedHistory      = 100
	MaxAllowedRateRequests = 1000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "gpt-4o-mini"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Orchestration loop bounds
	MaxIterations int `mapstructure:"max_iterations" json:"max_iterations"`   // model/tool round trips per request
	ToolCallLimit int `mapstructure:"tool_call_limit" json:"tool_call_limit"` // tool executions per iteration
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`   // prior messages loaded per request

	// Chat rate limiting (per caller identity, fixed window)
	RateLimitRequests int `mapstructure:"rate_limit_requests" json:"rate_limit_requests"`
	RateLimitWindowS  int `mapstructure:"rate_limit_window_seconds" json:"rate_limit_window_seconds"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ServerAddr  string   `mapstructure:"server_addr" json:"server_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	IPRateBurst int      `mapstructure:"ip_rate_burst" json:"ip_rate_burst"`
	Dev         bool     `mapstructure:"dev" json:"dev"` // allows HTTP cookies, disables HSTS

	// Tracing (OTLP HTTP collector; empty endpoint disables export)
	OtelEndpoint    string `mapstructure:"otel_endpoint" json:"otel_endpoint"`
	OtelServiceName string `mapstructure:"otel_service_name" json:"otel_service_name"`
	OtelEnvironment string `mapstructure:"otel_environment" json:"otel_environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/smartshop")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("max_tokens", 2048)

	// Orchestration defaults
	viper.SetDefault("max_iterations", 5)
	viper.SetDefault("tool_call_limit", 3)
	viper.SetDefault("history_window", 12)

	// Chat rate limit defaults: 20 requests per 60 second window per identity
	viper.SetDefault("rate_limit_requests", 20)
	viper.SetDefault("rate_limit_window_seconds", 60)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "smartshop")
	viper.SetDefault("postgres_password", "smartshop_dev_password")
	viper.SetDefault("postgres_db_name", "smartshop")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// HTTP defaults
	viper.SetDefault("server_addr", "127.0.0.1:8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:8000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("ip_rate_burst", 60)
	viper.SetDefault("dev", true)

	// Tracing defaults (export disabled unless an endpoint is configured)
	viper.SetDefault("otel_endpoint", "")
	viper.SetDefault("otel_service_name", "smartshop-assistant")
	viper.SetDefault("otel_environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
// API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the Genkit
// provider plugins, not via viper.
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a panic here is a bug, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "SMARTSHOP_PROVIDER")
	mustBind("model_name", "SMARTSHOP_MODEL_NAME")
	mustBind("server_addr", "SMARTSHOP_SERVER_ADDR")
	mustBind("cors_origins", "SMARTSHOP_CORS_ORIGINS")
	mustBind("trust_proxy", "SMARTSHOP_TRUST_PROXY")
	mustBind("dev", "SMARTSHOP_DEV")
	mustBind("rate_limit_requests", "SMARTSHOP_RATE_LIMIT_REQUESTS")
	mustBind("rate_limit_window_seconds", "SMARTSHOP_RATE_LIMIT_WINDOW_SECONDS")
	mustBind("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// parseDatabaseURL applies DATABASE_URL (if set) over the individual postgres
// fields. The URL form wins so container platforms can inject one value.
func (c *Config) parseDatabaseURL() error {
	raw := viper.GetString("database_url")
	if raw == "" {
		if err := viper.BindEnv("database_url", "DATABASE_URL"); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind database_url: %v", err))
		}
		raw = viper.GetString("database_url")
	}
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &c.PostgresPort); err != nil {
			return fmt.Errorf("parsing port %q: %w", p, err)
		}
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if ssl := u.Query().Get("sslmode"); ssl != "" {
		c.PostgresSSLMode = ssl
	}
	return nil
}

// Validate checks all configuration values and fails fast on the first problem.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q (expected gemini or openai)", ErrInvalidProvider, c.Provider)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDBName)
	}
	if c.RateLimitRequests < 1 || c.RateLimitRequests > MaxAllowedRateRequests {
		return fmt.Errorf("%w: requests=%d", ErrInvalidRateLimit, c.RateLimitRequests)
	}
	if c.RateLimitWindowS < 1 {
		return fmt.Errorf("%w: window=%ds", ErrInvalidRateLimit, c.RateLimitWindowS)
	}
	if c.MaxIterations < 1 || c.MaxIterations > MaxAllowedIterations {
		return fmt.Errorf("%w: %d", ErrInvalidIterationLimit, c.MaxIterations)
	}
	if c.ToolCallLimit < 1 || c.ToolCallLimit > MaxAllowedToolCalls {
		return fmt.Errorf("%w: %d", ErrInvalidToolCallLimit, c.ToolCallLimit)
	}
	if c.HistoryWindow < 1 || c.HistoryWindow > MaxAllowedHistory {
		return fmt.Errorf("%w: %d", ErrInvalidHistoryWindow, c.HistoryWindow)
	}
	return nil
}

// PostgresURL returns the postgres:// connection URL (used by migrations).
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresConnectionString returns the keyword/value connection string for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "openai/gpt-4o-mini".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets keep the first
// and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
