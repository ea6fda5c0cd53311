package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen       = ":8080"
	defaultHealthListen = ":8081"
	defaultScopeClaim   = "scope"
)

// Storage backends accepted by the daemon.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Event log drivers accepted by the daemon.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the runtime settings for the credit daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	HealthListen   string          `yaml:"health_listen"`
	ProtocolConfig string          `yaml:"protocol_config"`
	TLS            TLSConfig       `yaml:"tls"`
	Auth           AuthConfig      `yaml:"auth"`
	Storage        StorageConfig   `yaml:"storage"`
	EventLog       EventLogConfig  `yaml:"event_log"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Webhook        WebhookConfig   `yaml:"webhook"`
	Stream         StreamConfig    `yaml:"stream"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ScopeClaim    string        `yaml:"scope_claim"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// StorageConfig selects the key-value backend for protocol state.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// EventLogConfig enables the relational event journal. An empty driver
// disables it.
type EventLogConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// WebhookConfig forwards credit events to an external endpoint. An empty
// endpoint disables it.
type WebhookConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	SecretEnv string   `yaml:"secret_env"`
	Topics    []string `yaml:"topics"`
}

// StreamConfig controls the event websocket. Origins are host patterns such
// as "dashboard.example.com" or "*.example.com"; an empty list only admits
// same-origin browsers.
type StreamConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Secret resolves the token signing secret, preferring the environment.
func (cfg AuthConfig) Secret() string {
	if cfg.HMACSecretEnv != "" {
		if value := strings.TrimSpace(os.Getenv(cfg.HMACSecretEnv)); value != "" {
			return value
		}
	}
	return cfg.HMACSecret
}

// Enabled reports whether the event journal is configured.
func (cfg EventLogConfig) Enabled() bool { return cfg.Driver != "" }

// Enabled reports whether webhook delivery is configured.
func (cfg WebhookConfig) Enabled() bool { return cfg.Endpoint != "" }

// Secret returns the webhook signing secret from the environment.
func (cfg WebhookConfig) Secret() string {
	if cfg.SecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(cfg.SecretEnv))
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.HealthListen = strings.TrimSpace(cfg.HealthListen)
	if cfg.HealthListen == "" {
		cfg.HealthListen = defaultHealthListen
	}
	cfg.ProtocolConfig = strings.TrimSpace(cfg.ProtocolConfig)
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)

	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.HMACSecretEnv = strings.TrimSpace(cfg.Auth.HMACSecretEnv)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	cfg.Auth.ScopeClaim = strings.TrimSpace(cfg.Auth.ScopeClaim)
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = defaultScopeClaim
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)

	cfg.EventLog.Driver = strings.ToLower(strings.TrimSpace(cfg.EventLog.Driver))
	cfg.EventLog.DSN = strings.TrimSpace(cfg.EventLog.DSN)

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 50
	}

	cfg.Webhook.Endpoint = strings.TrimSpace(cfg.Webhook.Endpoint)
	cfg.Webhook.SecretEnv = strings.TrimSpace(cfg.Webhook.SecretEnv)
	topics := make([]string, 0, len(cfg.Webhook.Topics))
	for _, topic := range cfg.Webhook.Topics {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			topics = append(topics, trimmed)
		}
	}
	cfg.Webhook.Topics = topics

	origins := make([]string, 0, len(cfg.Stream.AllowedOrigins))
	for _, origin := range cfg.Stream.AllowedOrigins {
		if trimmed := strings.ToLower(strings.TrimSpace(origin)); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.Stream.AllowedOrigins = origins
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.ProtocolConfig == "" {
		return fmt.Errorf("protocol_config is required")
	}
	hasCert := cfg.TLS.CertPath != ""
	hasKey := cfg.TLS.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	if cfg.Auth.HMACSecret == "" && cfg.Auth.HMACSecretEnv == "" {
		return fmt.Errorf("auth: hmac_secret or hmac_secret_env is required")
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path is required for the %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	switch cfg.EventLog.Driver {
	case "":
	case DriverSQLite, DriverPostgres:
		if cfg.EventLog.DSN == "" {
			return fmt.Errorf("event_log: dsn is required for the %s driver", cfg.EventLog.Driver)
		}
	default:
		return fmt.Errorf("event_log: unknown driver %q", cfg.EventLog.Driver)
	}
	if cfg.Webhook.Enabled() && cfg.Webhook.SecretEnv == "" {
		return fmt.Errorf("webhook: secret_env is required when an endpoint is set")
	}
	for _, origin := range cfg.Stream.AllowedOrigins {
		if _, err := path.Match(origin, ""); err != nil {
			return fmt.Errorf("stream: invalid origin pattern %q: %w", origin, err)
		}
	}
	return nil
}
