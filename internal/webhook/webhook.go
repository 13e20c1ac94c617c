// Package webhook forwards session events to an operator-configured callback
// URL. Settings are runtime-mutable through the API and persisted next to the
// session database.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nicolasppejo/wagate/internal/stream"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a
// secret is configured.
const SignatureHeader = "X-Wagate-Signature"

// Settings is the persisted webhook configuration.
type Settings struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events,omitempty"` // empty = forward everything
}

// Dispatcher posts events to the configured URL. Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	settings Settings
	path     string
	client   *http.Client
	log      *zap.Logger
}

// NewDispatcher loads persisted settings from path, falling back to initial
// when no file exists yet.
func NewDispatcher(path string, initial Settings, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		settings: initial,
		path:     path,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
	if err := d.load(); err != nil {
		log.Warn("webhook settings not loaded, using defaults", zap.Error(err))
	}
	return d
}

func (d *Dispatcher) load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read webhook settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse webhook settings: %w", err)
	}

	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
	return nil
}

// Settings returns a copy of the current configuration.
func (d *Dispatcher) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.settings
	s.Events = append([]string(nil), d.settings.Events...)
	return s
}

// Update replaces the configuration and persists it. Write to a temp file
// first, then rename for an atomic swap.
func (d *Dispatcher) Update(s Settings) error {
	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal webhook settings: %w", err)
	}

	tempPath := d.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp webhook settings: %w", err)
	}
	if err := os.Rename(tempPath, d.path); err != nil {
		return fmt.Errorf("failed to rename webhook settings: %w", err)
	}
	return nil
}

// wants reports whether the event type passes the configured filter.
func (s Settings) wants(eventType string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Deliver posts the event to the configured URL. No-op when no URL is set or
// the type is filtered out. Callers fire it from a goroutine; failures are
// logged, never returned into the event path.
func (d *Dispatcher) Deliver(ev stream.Event) {
	if err := d.post(ev); err != nil {
		d.log.Warn("webhook delivery failed",
			zap.String("session_id", ev.SessionID),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

// Test posts a synthetic event synchronously and returns the delivery error,
// so operators can verify their endpoint from the API.
func (d *Dispatcher) Test(sessionID string) error {
	return d.post(stream.Event{
		SessionID: sessionID,
		Type:      "webhook_test",
		Timestamp: time.Now(),
		Data:      map[string]string{"message": "wagate webhook test"},
	})
}

func (d *Dispatcher) post(ev stream.Event) error {
	s := d.Settings()
	if s.URL == "" {
		return nil
	}
	if ev.Type != "webhook_test" && !s.wants(ev.Type) {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, s.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	d.log.Debug("webhook delivered",
		zap.String("session_id", ev.SessionID),
		zap.String("type", ev.Type),
		zap.Int("status", resp.StatusCode))
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
