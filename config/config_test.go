package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Nag.MinDelay != 45*time.Minute {
		t.Errorf("Expected 45m nag delay, got %v", cfg.Nag.MinDelay)
	}
	if cfg.Nag.Scope != "channel" {
		t.Errorf("Expected channel scope, got %s", cfg.Nag.Scope)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Expected memory storage, got %s", cfg.Storage.Driver)
	}
	if cfg.Giphy.Limit != 40 || cfg.Giphy.MaxSizeBytes != 2000000 {
		t.Errorf("Unexpected giphy defaults: %+v", cfg.Giphy)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":7000"
nag:
  min_delay: 10m
  scope: global
users:
  - id: U1
    name: ana
    real_name: Ana Lima
  - id: B1
    name: helper
    is_bot: true
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(dir, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.HTTPAddress != ":7000" {
		t.Errorf("Expected :7000, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Nag.MinDelay != 10*time.Minute || cfg.Nag.Scope != "global" {
		t.Errorf("Unexpected nag config: %+v", cfg.Nag)
	}
	if len(cfg.Users) != 2 || cfg.Users[0].RealName != "Ana Lima" || !cfg.Users[1].IsBot {
		t.Errorf("Unexpected users: %+v", cfg.Users)
	}
	// untouched keys keep their defaults
	if cfg.Server.RPCAddress != ":9090" {
		t.Errorf("Expected :9090, got %s", cfg.Server.RPCAddress)
	}
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "referee.yml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: gorm\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.Driver != "gorm" {
		t.Errorf("Expected gorm, got %s", cfg.Storage.Driver)
	}
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("FOOSREF_GIPHY_API_KEY", "secret")
	t.Setenv("FOOSREF_SERVER_HTTP_ADDRESS", ":7100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http", "", "")
	flags.String("nag-scope", "", "")
	if err := flags.Parse([]string{"--http=:7200"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := LoadConfig(t.TempDir(), flags)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Giphy.APIKey != "secret" {
		t.Errorf("Expected key from env, got %q", cfg.Giphy.APIKey)
	}
	if cfg.Server.HTTPAddress != ":7200" {
		t.Errorf("Expected flag to win over env, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Nag.Scope != "channel" {
		t.Errorf("Expected unset flag to keep default, got %q", cfg.Nag.Scope)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"scope", "FOOSREF_NAG_SCOPE", "team"},
		{"driver", "FOOSREF_STORAGE_DRIVER", "redis"},
		{"delay", "FOOSREF_NAG_MIN_DELAY", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			if _, err := LoadConfig(t.TempDir(), nil); err == nil {
				t.Errorf("Expected error for %s=%s", tt.env, tt.val)
			}
		})
	}
}
