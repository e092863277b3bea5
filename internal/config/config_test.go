package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTP.Addr != ":8080" || c.DB.Path != "garrison.sqlite3" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("expected 24h token ttl, got %s", c.Auth.TokenTTL)
	}
	if c.Auth.AllowRegistration {
		t.Error("registration must be off by default")
	}
	if c.Jobs.ReturnRetry == "" || c.Jobs.TokenCleanup == "" {
		t.Error("expected default job schedules")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GARRISON_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("GARRISON_AUTH_TOKEN_TTL", "90m")
	t.Setenv("GARRISON_AUTH_ALLOW_REGISTRATION", "true")
	t.Setenv("GARRISON_LOG_LEVEL", "debug")

	c, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTP.Addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q", c.HTTP.Addr)
	}
	if c.Auth.TokenTTL != 90*time.Minute {
		t.Errorf("token ttl = %s", c.Auth.TokenTTL)
	}
	if !c.Auth.AllowRegistration {
		t.Error("expected registration enabled")
	}
	if c.LogLevel() != slog.LevelDebug {
		t.Errorf("level = %s", c.LogLevel())
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garrison.yaml")
	data := "db:\n  path: /var/lib/garrison.db\nmetrics:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DB.Path != "/var/lib/garrison.db" || c.Metrics.Enabled {
		t.Errorf("file values not applied: %+v", c)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GARRISON_ADMIN_USERNAME=quartermaster\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GARRISON_ADMIN_USERNAME", "")
	os.Unsetenv("GARRISON_ADMIN_USERNAME")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	c, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Admin.Username != "quartermaster" {
		t.Errorf("admin username = %q", c.Admin.Username)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad level", map[string]string{"GARRISON_LOG_LEVEL": "loud"}},
		{"zero ttl", map[string]string{"GARRISON_AUTH_TOKEN_TTL": "0s"}},
		{"blank admin", map[string]string{"GARRISON_ADMIN_USERNAME": " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(New(), ""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
