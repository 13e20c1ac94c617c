package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.uber.org/zap"

	"github.com/nicolasppejo/wagate/internal/config"
	"github.com/nicolasppejo/wagate/internal/logging"
	"github.com/nicolasppejo/wagate/internal/qr"
	"github.com/nicolasppejo/wagate/internal/stream"
	"github.com/nicolasppejo/wagate/internal/webhook"
)

// Manager is the session registry: session ID -> client/store/subscribers,
// plus the device-to-session mapping that survives restarts.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	state    map[string]string // device JID -> session ID

	container *sqlstore.Container
	webhook   *webhook.Dispatcher
	cfg       *config.Config
	log       *zap.Logger
	statePath string
	qrOut     io.Writer
}

type stateFile struct {
	Sessions map[string]string `json:"sessions"`
}

// NewManager wires the registry. qrOut receives terminal QR art when the
// config enables it (os.Stdout in production).
func NewManager(container *sqlstore.Container, hook *webhook.Dispatcher, cfg *config.Config, log *zap.Logger, qrOut io.Writer) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		state:     make(map[string]string),
		container: container,
		webhook:   hook,
		cfg:       cfg,
		log:       log,
		statePath: filepath.Join(cfg.DataDir, "sessions.json"),
		qrOut:     qrOut,
	}
	if err := m.loadState(); err != nil {
		log.Warn("session state not loaded, starting empty", zap.Error(err))
	}
	return m
}

func (m *Manager) loadState() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read session state: %w", err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("failed to parse session state: %w", err)
	}

	m.mu.Lock()
	if sf.Sessions != nil {
		m.state = sf.Sessions
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) saveState() error {
	m.mu.RLock()
	sf := stateFile{Sessions: make(map[string]string, len(m.state))}
	for k, v := range m.state {
		sf.Sessions[k] = v
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tempPath := m.statePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp session state: %w", err)
	}
	if err := os.Rename(tempPath, m.statePath); err != nil {
		return fmt.Errorf("failed to rename session state: %w", err)
	}
	return nil
}

// rememberDevice records the device->session mapping once pairing completes.
func (m *Manager) rememberDevice(deviceJID, sessionID string) {
	m.mu.Lock()
	m.state[deviceJID] = sessionID
	m.mu.Unlock()

	if err := m.saveState(); err != nil {
		m.log.Warn("failed to save session state", zap.Error(err))
	}
}

func (m *Manager) forgetSession(sessionID string) {
	m.mu.Lock()
	for jid, id := range m.state {
		if id == sessionID {
			delete(m.state, jid)
		}
	}
	m.mu.Unlock()

	if err := m.saveState(); err != nil {
		m.log.Warn("failed to save session state", zap.Error(err))
	}
}

// register builds the whatsmeow client for a device and adds the session to
// the registry. Auto-reconnect stays off: the gateway owns the retry rule.
func (m *Manager) register(id string, device *store.Device) *Session {
	client := whatsmeow.NewClient(device, logging.Wa(m.log, "whatsmeow").Sub(id[:8]))
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	s := newSession(id, client, device, m.cfg.MessageCacheCap)
	client.AddEventHandler(m.eventHandler(s))

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Create registers a new session and starts pairing: the QR loop feeds
// pairing codes to subscribers until the phone scans one.
func (m *Manager) Create() (*Session, error) {
	id := uuid.New().String()
	s := m.register(id, m.container.NewDevice())

	go m.pairLoop(s)

	m.log.Info("session created", zap.String("session_id", id))
	return s, nil
}

// pairLoop drives GetQRChannel + Connect and relays pairing codes. The
// channel must outlive the HTTP request that created the session, hence the
// background context.
func (m *Manager) pairLoop(s *Session) {
	qrChan, err := s.client.GetQRChannel(context.Background())
	if err != nil {
		m.log.Error("failed to get QR channel", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	if err := s.client.Connect(); err != nil {
		m.log.Error("failed to connect for pairing", zap.String("session_id", s.ID), zap.Error(err))
		return
	}

	for item := range qrChan {
		switch item.Event {
		case "code":
			s.setQR(item.Code)
			if m.cfg.QRInTerminal && m.qrOut != nil {
				qr.Terminal(item.Code, m.qrOut)
			}
			m.publish(s, "qr", map[string]interface{}{"code": item.Code})
		case "success":
			s.setQR("")
		case "timeout":
			s.setQR("")
			m.publish(s, "qr_timeout", nil)
			m.log.Info("pairing timed out", zap.String("session_id", s.ID))
		default:
			m.log.Debug("QR channel event",
				zap.String("session_id", s.ID),
				zap.String("event", item.Event))
		}
	}
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// All returns every session, ID-sorted for stable listings.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count reports total and connected sessions, for the health endpoint.
func (m *Manager) Count() (total, connected int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		total++
		if s.Info().Connected {
			connected++
		}
	}
	return total, connected
}

// Delete logs the session out (dropping the device) and removes it from the
// registry. Unpaired sessions are simply disconnected.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.stop()
	if s.client.IsLoggedIn() {
		if err := s.client.Logout(ctx); err != nil {
			m.log.Warn("logout failed, disconnecting anyway",
				zap.String("session_id", id), zap.Error(err))
			s.client.Disconnect()
		}
	} else {
		s.client.Disconnect()
	}
	s.hub.Close()
	m.forgetSession(id)

	m.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Reconnect tears the socket down and dials again. Meant for operators; the
// automatic fixed-delay rule handles normal drops.
func (m *Manager) Reconnect(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if !s.reconnectable() {
		return ErrLoggedOut
	}

	s.client.Disconnect()
	time.Sleep(2 * time.Second)
	if err := s.client.Connect(); err != nil && !errors.Is(err, whatsmeow.ErrAlreadyConnected) {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	return nil
}

// PairPhone requests a phone-number pairing code as an alternative to the QR
// scan.
func (m *Manager) PairPhone(ctx context.Context, id, phone string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}

	code, err := s.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}
	return code, nil
}

// Restore rebuilds sessions for every device in the store, reusing persisted
// session IDs where known, and reconnects paired devices.
func (m *Manager) Restore(ctx context.Context) error {
	devices, err := m.container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to get existing devices: %w", err)
	}

	for _, device := range devices {
		if device.ID == nil {
			continue
		}
		deviceJID := device.ID.String()

		m.mu.Lock()
		id, known := m.state[deviceJID]
		if !known {
			id = uuid.New().String()
			m.state[deviceJID] = id
		}
		m.mu.Unlock()

		s := m.register(id, device)

		go func(s *Session) {
			if err := s.client.Connect(); err != nil {
				m.log.Warn("failed to reconnect restored session",
					zap.String("session_id", s.ID), zap.Error(err))
			}
		}(s)

		m.log.Info("session restored",
			zap.String("session_id", id),
			zap.String("jid", deviceJID),
			zap.Bool("had_mapping", known))
	}

	if err := m.saveState(); err != nil {
		m.log.Warn("failed to save session state", zap.Error(err))
	}
	return nil
}

// DisconnectAll is the shutdown path: stop reconnects, close sockets, end
// every event stream.
func (m *Manager) DisconnectAll() {
	for _, s := range m.All() {
		s.stop()
		if s.client != nil {
			s.client.Disconnect()
		}
		s.hub.Close()
	}
	m.log.Info("all sessions disconnected")
}

// publish fans one event out: SSE subscribers first (emission order is the
// hub's contract), webhook delivery in the background.
func (m *Manager) publish(s *Session, typ string, data interface{}) {
	ev := stream.Event{
		SessionID: s.ID,
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
	s.hub.Publish(ev)
	if m.webhook != nil {
		go m.webhook.Deliver(ev)
	}
}

// scheduleReconnect arms the fixed-delay retry: disconnected but not logged
// out means one Connect attempt per delay until the session comes back, logs
// out or is stopped.
func (m *Manager) scheduleReconnect(s *Session) {
	if !s.reconnectable() {
		return
	}
	delay := m.cfg.ReconnectDelay

	s.setReconnectTimer(time.AfterFunc(delay, func() {
		if !s.reconnectable() || s.client.IsConnected() {
			return
		}
		m.log.Info("reconnecting session",
			zap.String("session_id", s.ID),
			zap.Duration("delay", delay))
		err := s.client.Connect()
		if err == nil || errors.Is(err, whatsmeow.ErrAlreadyConnected) {
			return
		}
		m.log.Warn("reconnect attempt failed",
			zap.String("session_id", s.ID), zap.Error(err))
		m.scheduleReconnect(s)
	}))
}
