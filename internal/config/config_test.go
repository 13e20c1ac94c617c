package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "7030" {
		t.Errorf("Port = %q, want 7030", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:7030" {
		t.Errorf("BaseURL = %q, want http://localhost:7030", cfg.BaseURL)
	}
	if cfg.DBPath != "data/wagate.db" {
		t.Errorf("DBPath = %q, want data/wagate.db", cfg.DBPath)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %s, want 5s", cfg.ReconnectDelay)
	}
	if !cfg.QRInTerminal {
		t.Error("QRInTerminal should default to true")
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey should default to empty, got %q", cfg.APIKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEY", "secret123")
	t.Setenv("DATA_DIR", "/var/lib/wagate")
	t.Setenv("RECONNECT_DELAY", "30s")
	t.Setenv("MESSAGE_CACHE_CAP", "50")
	t.Setenv("QR_TERMINAL", "false")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:9090" {
		t.Errorf("BaseURL = %q, want http://localhost:9090", cfg.BaseURL)
	}
	if cfg.APIKey != "secret123" {
		t.Errorf("APIKey = %q, want secret123", cfg.APIKey)
	}
	if cfg.DBPath != "/var/lib/wagate/wagate.db" {
		t.Errorf("DBPath = %q, want /var/lib/wagate/wagate.db", cfg.DBPath)
	}
	if cfg.ReconnectDelay != 30*time.Second {
		t.Errorf("ReconnectDelay = %s, want 30s", cfg.ReconnectDelay)
	}
	if cfg.MessageCacheCap != 50 {
		t.Errorf("MessageCacheCap = %d, want 50", cfg.MessageCacheCap)
	}
	if cfg.QRInTerminal {
		t.Error("QRInTerminal should be false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (lowercased)", cfg.LogLevel)
	}
}

func TestLoadBaseURLTrimsSlash(t *testing.T) {
	t.Setenv("BASE_URL", "https://wa.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "https://wa.example.com" {
		t.Errorf("BaseURL = %q, want https://wa.example.com", cfg.BaseURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "RECONNECT_DELAY", "soon"},
		{"negative delay", "RECONNECT_DELAY", "-5s"},
		{"bad cache cap", "MESSAGE_CACHE_CAP", "many"},
		{"zero cache cap", "MESSAGE_CACHE_CAP", "0"},
		{"bad bool", "QR_TERMINAL", "yep"},
		{"bad port", "PORT", "http"},
		{"bad level", "LOG_LEVEL", "loud"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.ReconnectDelay = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero ReconnectDelay should fail validation")
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	if cfg.Addr() != ":7030" {
		t.Errorf("Addr = %q, want :7030", cfg.Addr())
	}
}
