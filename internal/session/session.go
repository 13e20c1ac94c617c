// Package session owns the registry at the heart of the gateway: a map of
// session ID to WhatsApp client, chat cache and SSE subscribers, with
// broadcast fan-out of everything the protocol library emits.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/nicolasppejo/wagate/internal/stream"
)

// mediaCacheCap bounds how many downloaded inbound files a session keeps.
const mediaCacheCap = 100

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLoggedOut       = errors.New("session is logged out")
	ErrNoQRCode        = errors.New("no QR code available")
	ErrAlreadyPaired   = errors.New("session is already paired")
)

type mediaItem struct {
	data     []byte
	mimetype string
}

// Session binds one WhatsApp device to its event hub and caches.
type Session struct {
	ID string

	client *whatsmeow.Client
	device *store.Device
	hub    *stream.Hub
	chats  *ChatCache

	mu          sync.RWMutex
	qrCode      string
	connected   bool
	loggedOut   bool
	stopping    bool
	connectedAt *time.Time
	reconnect   *time.Timer
	media       map[string]mediaItem
	mediaOrder  []string
}

func newSession(id string, client *whatsmeow.Client, device *store.Device, msgCap int) *Session {
	return &Session{
		ID:     id,
		client: client,
		device: device,
		hub:    stream.NewHub(),
		chats:  newChatCache(msgCap),
		media:  make(map[string]mediaItem),
	}
}

// Info is the API snapshot of a session.
type Info struct {
	ID          string     `json:"id"`
	JID         string     `json:"jid,omitempty"`
	PushName    string     `json:"push_name,omitempty"`
	Connected   bool       `json:"connected"`
	LoggedOut   bool       `json:"logged_out"`
	QRAvailable bool       `json:"qr_available"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	ChatCount   int        `json:"chat_count"`
}

// Info returns the current snapshot.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:          s.ID,
		Connected:   s.connected,
		LoggedOut:   s.loggedOut,
		QRAvailable: s.qrCode != "",
		ConnectedAt: s.connectedAt,
		ChatCount:   s.chats.ChatCount(),
	}
	if s.device != nil && s.device.ID != nil {
		info.JID = s.device.ID.ToNonAD().String()
		info.PushName = s.device.PushName
	}
	return info
}

// Hub exposes the session's event hub for SSE subscriptions.
func (s *Session) Hub() *stream.Hub {
	return s.hub
}

// Chats exposes the chat/message cache.
func (s *Session) Chats() *ChatCache {
	return s.chats
}

// QR returns the current pairing code, or ErrAlreadyPaired / ErrNoQRCode.
func (s *Session) QR() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.connected {
		return "", ErrAlreadyPaired
	}
	if s.qrCode == "" {
		return "", ErrNoQRCode
	}
	return s.qrCode, nil
}

func (s *Session) setQR(code string) {
	s.mu.Lock()
	s.qrCode = code
	s.mu.Unlock()
}

func (s *Session) markConnected() {
	now := time.Now()
	s.mu.Lock()
	s.connected = true
	s.loggedOut = false
	s.qrCode = ""
	s.connectedAt = &now
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.mu.Unlock()
}

func (s *Session) markDisconnected() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *Session) markLoggedOut() {
	s.mu.Lock()
	s.connected = false
	s.loggedOut = true
	s.qrCode = ""
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.mu.Unlock()
}

// stop marks the session as shutting down and cancels a pending reconnect.
func (s *Session) stop() {
	s.mu.Lock()
	s.stopping = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.mu.Unlock()
}

// reconnectable reports whether the fixed-delay retry rule applies: the
// session dropped its socket but was neither logged out nor stopped.
func (s *Session) reconnectable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loggedOut && !s.stopping
}

func (s *Session) setReconnectTimer(t *time.Timer) {
	s.mu.Lock()
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnect = t
	s.mu.Unlock()
}

// storeMedia caches downloaded bytes for the media endpoint, evicting the
// oldest entry beyond the cap.
func (s *Session) storeMedia(id string, data []byte, mimetype string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[id]; ok {
		return
	}
	s.media[id] = mediaItem{data: data, mimetype: mimetype}
	s.mediaOrder = append(s.mediaOrder, id)
	if len(s.mediaOrder) > mediaCacheCap {
		oldest := s.mediaOrder[0]
		s.mediaOrder = s.mediaOrder[1:]
		delete(s.media, oldest)
	}
}

// Media returns cached inbound media bytes and their mimetype.
func (s *Session) Media(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.media[id]
	return item.data, item.mimetype, ok
}

// SendText sends a plain text message and records it in the chat cache.
func (s *Session) SendText(ctx context.Context, to, text string) (string, time.Time, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return "", time.Time{}, err
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	resp, err := s.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to send message: %w", err)
	}

	s.chats.Add(Message{
		ID:        string(resp.ID),
		ChatJID:   jid.ToNonAD().String(),
		SenderJID: s.Info().JID,
		FromMe:    true,
		Timestamp: resp.Timestamp,
		Type:      "text",
		Text:      text,
	}, "")
	return string(resp.ID), resp.Timestamp, nil
}

// SendImage uploads image bytes and sends them with an optional caption.
func (s *Session) SendImage(ctx context.Context, to string, data []byte, mimetype, caption string) (string, time.Time, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return "", time.Time{}, err
	}

	uploaded, err := s.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to upload image: %w", err)
	}

	msg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(uint64(len(data))),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		},
	}
	resp, err := s.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to send image: %w", err)
	}

	s.chats.Add(Message{
		ID:        string(resp.ID),
		ChatJID:   jid.ToNonAD().String(),
		SenderJID: s.Info().JID,
		FromMe:    true,
		Timestamp: resp.Timestamp,
		Type:      "image",
		Text:      caption,
		Mimetype:  mimetype,
	}, "")
	return string(resp.ID), resp.Timestamp, nil
}

// Contact is one address book entry from the device store.
type Contact struct {
	JID          string `json:"jid"`
	Phone        string `json:"phone,omitempty"`
	Name         string `json:"name,omitempty"`
	PushName     string `json:"push_name,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
}

// Contacts lists the user contacts known to the device store.
func (s *Session) Contacts(ctx context.Context) ([]Contact, error) {
	if s.client == nil || s.client.Store == nil || s.client.Store.Contacts == nil {
		return nil, errors.New("no contact store available")
	}

	all, err := s.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}

	out := make([]Contact, 0, len(all))
	for jid, info := range all {
		if jid.Server != types.DefaultUserServer && jid.Server != types.HiddenUserServer {
			continue
		}
		name := info.FullName
		if name == "" {
			name = info.FirstName
		}
		out = append(out, Contact{
			JID:          jid.ToNonAD().String(),
			Phone:        jid.User,
			Name:         name,
			PushName:     info.PushName,
			BusinessName: info.BusinessName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out, nil
}

// ParseRecipient turns an API recipient into a JID. Values containing '@'
// are parsed as full JIDs (so groups work as ...@g.us); anything else is
// treated as a phone number, stripped to digits and given the default user
// server.
func ParseRecipient(to string) (types.JID, error) {
	if to == "" {
		return types.JID{}, errors.New("recipient is required")
	}

	if strings.ContainsRune(to, '@') {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid JID %q: %w", to, err)
		}
		if jid.User == "" {
			return types.JID{}, fmt.Errorf("invalid JID %q: missing user part", to)
		}
		return jid, nil
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, to)
	if len(digits) < 5 {
		return types.JID{}, fmt.Errorf("invalid phone number %q", to)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
