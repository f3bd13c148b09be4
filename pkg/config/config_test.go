package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
auth:
  jwt_secret: "0123456789abcdef0123"
  api_master_secret: "master"
session:
  ttl: 30m
log:
  format: console
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SHIFT_LOG_LEVEL", "debug")
	t.Setenv("SHIFT_SERVER_PORT", "9191")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Expected env to override port, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("Expected session ttl 30m, got %s", cfg.Session.TTL)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Expected default token ttl 24h, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Database.Path != "scheduler.db" {
		t.Errorf("Expected default database path, got %q", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Server:  ServerConfig{Port: 8000},
		Auth:    AuthConfig{JWTSecret: "0123456789abcdef", MasterSecret: "m"},
		Session: SessionConfig{TTL: time.Hour},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	cases := map[string]func(c *Config){
		"port":          func(c *Config) { c.Server.Port = 0 },
		"short secret":  func(c *Config) { c.Auth.JWTSecret = "short" },
		"master secret": func(c *Config) { c.Auth.MasterSecret = "" },
		"session ttl":   func(c *Config) { c.Session.TTL = 0 },
	}
	for name, mutate := range cases {
		c := valid
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestRead_SkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  api_master_secret: master\nsession:\n  ttl: 0s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Auth.MasterSecret != "master" {
		t.Errorf("Expected master secret to be read, got %q", cfg.Auth.MasterSecret)
	}

	if _, err := Load(path); err == nil {
		t.Errorf("Expected Load to reject a config without jwt secret")
	}
}
