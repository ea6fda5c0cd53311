package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
protocol_config: " trustlend.toml "
tls:
  allow_insecure: true
auth:
  hmac_secret: " s3cret "
storage:
  backend: MEMORY
webhook:
  endpoint: "https://hooks.example/credit"
  secret_env: CREDITD_WEBHOOK_SECRET
  topics: [" lending.loan.defaulted ", " "]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.HealthListen != defaultHealthListen {
		t.Fatalf("unexpected health listen address: %q", cfg.HealthListen)
	}
	if cfg.ProtocolConfig != "trustlend.toml" {
		t.Fatalf("protocol config not trimmed: %q", cfg.ProtocolConfig)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}
	if cfg.Auth.Secret() != "s3cret" || cfg.Auth.ScopeClaim != "scope" || cfg.Auth.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.RateLimit.Burst != 50 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if len(cfg.Webhook.Topics) != 1 || cfg.Webhook.Topics[0] != "lending.loan.defaulted" {
		t.Fatalf("unexpected topics: %v", cfg.Webhook.Topics)
	}
	if cfg.EventLog.Enabled() {
		t.Fatalf("event log should be disabled by default")
	}
}

func TestAuthSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("CREDITD_JWT_SECRET", "from-env")
	path := writeConfig(t, `
protocol_config: trustlend.toml
tls:
  allow_insecure: true
auth:
  hmac_secret: inline
  hmac_secret_env: CREDITD_JWT_SECRET
  clock_skew: 30s
storage:
  backend: leveldb
  path: /tmp/creditd
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.Auth.Secret(); got != "from-env" {
		t.Fatalf("expected env secret, got %q", got)
	}
	if cfg.Auth.ClockSkew != 30*time.Second {
		t.Fatalf("unexpected clock skew %s", cfg.Auth.ClockSkew)
	}
}

func TestStreamOrigins(t *testing.T) {
	path := writeConfig(t, `
protocol_config: trustlend.toml
tls:
  allow_insecure: true
auth:
  hmac_secret: s3cret
storage:
  backend: memory
stream:
  allowed_origins: [" Dashboard.Example.com ", "", "*.trustlend.io"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := []string{"dashboard.example.com", "*.trustlend.io"}
	if strings.Join(cfg.Stream.AllowedOrigins, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected origins %v", cfg.Stream.AllowedOrigins)
	}

	defaults, err := Load(writeConfig(t, "protocol_config: a.toml\ntls:\n  allow_insecure: true\nauth:\n  hmac_secret: x\nstorage:\n  backend: memory\n"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if len(defaults.Stream.AllowedOrigins) != 0 {
		t.Fatalf("cross-origin streaming must be off by default, got %v", defaults.Stream.AllowedOrigins)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	base := `
protocol_config: trustlend.toml
tls:
  allow_insecure: true
auth:
  hmac_secret: s3cret
`
	cases := []struct {
		name     string
		contents string
		want     string
	}{
		{"missing protocol config", "tls:\n  allow_insecure: true\nauth:\n  hmac_secret: x\n", "protocol_config"},
		{"missing secret", "protocol_config: a.toml\ntls:\n  allow_insecure: true\n", "hmac_secret"},
		{"tls required", "protocol_config: a.toml\nauth:\n  hmac_secret: x\n", "allow_insecure"},
		{"half tls", "protocol_config: a.toml\ntls:\n  cert: a.crt\nauth:\n  hmac_secret: x\n", "both be provided"},
		{"leveldb without path", base + "storage:\n  backend: leveldb\n", "path is required"},
		{"unknown backend", base + "storage:\n  backend: redis\n  path: x\n", "unknown backend"},
		{"sqlite without dsn", base + "storage:\n  backend: memory\nevent_log:\n  driver: sqlite\n", "dsn is required"},
		{"unknown driver", base + "storage:\n  backend: memory\nevent_log:\n  driver: mysql\n  dsn: x\n", "unknown driver"},
		{"webhook without secret", base + "storage:\n  backend: memory\nwebhook:\n  endpoint: http://x\n", "secret_env"},
		{"bad origin pattern", base + "storage:\n  backend: memory\nstream:\n  allowed_origins: [\"[dash\"]\n", "invalid origin pattern"},
		{"unknown field", base + "storage:\n  backend: memory\nlisten_addr: x\n", "listen_addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.contents))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
