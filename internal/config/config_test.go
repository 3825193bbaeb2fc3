package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr: %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" || cfg.Cache.Driver != "memory" {
		t.Fatalf("drivers: %q %q", cfg.Storage.Driver, cfg.Cache.Driver)
	}
	if cfg.JWT.Issuer != "crossjohn" || cfg.JWT.AccessTTL != time.Hour {
		t.Fatalf("jwt defaults: %+v", cfg.JWT)
	}
	if cfg.Rate.Limit != 30 || cfg.Rate.Window != time.Minute {
		t.Fatalf("rate defaults: %+v", cfg.Rate)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_FullFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9090"
storage:
  driver: postgres
  dsn: postgres://broker:pw@db/broker
jwt:
  issuer: broker.test
  access_ttl: 30m
rate:
  enabled: true
  limit: 5
  window: 10s
providers:
  google:
    kind: oidc
    issuer_url: https://accounts.google.com
    client_id: cid
    client_secret: cs
  local:
    kind: local
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Storage.Driver != "postgres" {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.JWT.AccessTTL != 30*time.Minute {
		t.Fatalf("access_ttl: %v", cfg.JWT.AccessTTL)
	}
	if !cfg.Rate.Enabled || cfg.Rate.Limit != 5 || cfg.Rate.Window != 10*time.Second {
		t.Fatalf("rate: %+v", cfg.Rate)
	}
	p, ok := cfg.Providers["google"]
	if !ok || p.Kind != "oidc" || p.IssuerURL != "https://accounts.google.com" {
		t.Fatalf("provider google: %+v", p)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CROSSJOHN_ADDR", ":7070")
	t.Setenv("CROSSJOHN_STORAGE_DRIVER", "redis")
	t.Setenv("CROSSJOHN_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("CROSSJOHN_JWT_ISSUER", "env-issuer")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr: %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "redis" || cfg.Storage.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	// El addr de redis se propaga al cache cuando este no define el suyo.
	if cfg.Cache.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("cache addr: %q", cfg.Cache.Redis.Addr)
	}
	if cfg.JWT.Issuer != "env-issuer" {
		t.Fatalf("issuer: %q", cfg.JWT.Issuer)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown storage driver", "storage:\n  driver: cassandra\n"},
		{"postgres without dsn", "storage:\n  driver: postgres\n"},
		{"redis without addr", "storage:\n  driver: redis\n"},
		{"provider without kind", "providers:\n  google: {}\n"},
		{"provider unknown kind", "providers:\n  google:\n    kind: ldap\n"},
		{"bad method name", "providers:\n  BAD NAME:\n    kind: local\n"},
	}
	for _, tc := range cases {
		cfg, err := Load(writeConfig(t, tc.yaml))
		if err != nil {
			t.Fatalf("%s: Load: %v", tc.name, err)
		}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: validated", tc.name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file loaded")
	}
}
