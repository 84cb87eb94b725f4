// Package config provides unified configuration for the relais bridge.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RELAIS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the relais bridge.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Agent         AgentConfig         `yaml:"agent"`
	Credential    CredentialConfig    `yaml:"credential"`
	Auth          AuthConfig          `yaml:"auth"`
	Usage         UsageConfig         `yaml:"usage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `yaml:"port"`         // default: 8080
	ReadTimeout time.Duration `yaml:"read_timeout"` // default: 30s
	// WriteTimeout bounds a whole response. Streaming chat responses are
	// open-ended, so the default is 0 (disabled).
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig holds settings for talking to the upstream chat endpoint.
// The chat endpoint host itself is not configured here; it arrives inside
// the short-lived credential minted by the token endpoint.
type UpstreamConfig struct {
	TokenURL        string        `yaml:"token_url"`        // required
	ExchangeTimeout time.Duration `yaml:"exchange_timeout"` // default: 30s
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`  // default: 30s
}

// AgentConfig describes the external authorization agent subprocess.
type AgentConfig struct {
	Command     string        `yaml:"command"` // required
	Args        []string      `yaml:"args"`
	CallTimeout time.Duration `yaml:"call_timeout"` // default: 30s
}

// CredentialConfig holds credential lifecycle settings.
type CredentialConfig struct {
	RenewInterval time.Duration `yaml:"renew_interval"` // default: 25m
	RenewAhead    time.Duration `yaml:"renew_ahead"`    // default: 5m
	// OAuthToken is the long-lived authorization artifact exchanged for
	// short-lived credentials. Usually obtained via "relais signin", but a
	// pre-provisioned token can be injected here.
	OAuthToken     string `yaml:"oauth_token"`
	OAuthTokenFile string `yaml:"oauth_token_file"` // _file variant for oauth_token
}

// AuthConfig holds inbound caller authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt
	// RateLimitRPM caps requests per minute per authenticated subject.
	// 0 disables rate limiting.
	RateLimitRPM int `yaml:"rate_limit_rpm"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string   `yaml:"key"`
	KeyFile string   `yaml:"key_file"` // _file variant for key
	Subject string   `yaml:"subject"`
	Scopes  []string `yaml:"scopes"`
}

// JWTConfig holds JWT/JWKS validation settings.
type JWTConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwks_url"` // required for type=jwt
}

// UsageConfig holds token usage ledger settings.
type UsageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			ExchangeTimeout: 30 * time.Second,
			ConnectTimeout:  30 * time.Second,
		},
		Agent: AgentConfig{
			CallTimeout: 30 * time.Second,
		},
		Credential: CredentialConfig{
			RenewInterval: 25 * time.Minute,
			RenewAhead:    5 * time.Minute,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Usage: UsageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
