package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all wagate settings. Everything comes from the environment;
// there is no config file (the only persisted file is the runtime webhook
// settings, owned by the webhook package).
type Config struct {
	// HTTP
	Port    string
	BaseURL string
	APIKey  string

	// Storage
	DataDir string
	DBPath  string

	// WhatsApp
	DeviceName     string
	ReconnectDelay time.Duration

	// Webhook defaults (runtime-mutable via the API)
	WebhookURL    string
	WebhookSecret string

	// Caches
	MessageCacheCap int

	// Operator conveniences
	QRInTerminal bool
	LogLevel     string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            "7030",
		DataDir:         "data",
		DeviceName:      "Wagate",
		ReconnectDelay:  5 * time.Second,
		MessageCacheCap: 200,
		QRInTerminal:    true,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults plus environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "wagate.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DEVICE_NAME"); v != "" {
		c.DeviceName = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := os.Getenv("RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RECONNECT_DELAY %q: %w", v, err)
		}
		c.ReconnectDelay = d
	}
	if v := os.Getenv("MESSAGE_CACHE_CAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MESSAGE_CACHE_CAP %q: %w", v, err)
		}
		c.MessageCacheCap = n
	}
	if v := os.Getenv("QR_TERMINAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid QR_TERMINAL %q: %w", v, err)
		}
		c.QRInTerminal = b
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	return nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: must be numeric", c.Port)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("invalid RECONNECT_DELAY %s: must be positive", c.ReconnectDelay)
	}
	if c.MessageCacheCap <= 0 {
		return fmt.Errorf("invalid MESSAGE_CACHE_CAP %d: must be positive", c.MessageCacheCap)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
