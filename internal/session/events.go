package session

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// eventHandler translates whatsmeow events for one session into stream
// events, chat cache updates and webhook deliveries. The handler must not
// block: downloads and webhook posts run in goroutines.
func (m *Manager) eventHandler(s *Session) func(interface{}) {
	return func(evt interface{}) {
		switch v := evt.(type) {
		case *events.QR:
			if len(v.Codes) > 0 {
				s.setQR(v.Codes[0])
				m.publish(s, "qr", map[string]interface{}{"code": v.Codes[0]})
			}

		case *events.PairSuccess:
			m.publish(s, "pair_success", map[string]interface{}{
				"jid":           v.ID.ToNonAD().String(),
				"business_name": v.BusinessName,
				"platform":      v.Platform,
			})

		case *events.Connected:
			s.markConnected()
			info := s.Info()
			if s.device != nil && s.device.ID != nil {
				m.rememberDevice(s.device.ID.String(), s.ID)
			}
			m.publish(s, "connected", map[string]interface{}{
				"jid":       info.JID,
				"push_name": info.PushName,
			})
			m.log.Info("session connected",
				zap.String("session_id", s.ID), zap.String("jid", info.JID))

		case *events.Disconnected:
			s.markDisconnected()
			m.publish(s, "disconnected", nil)
			m.log.Warn("session disconnected", zap.String("session_id", s.ID))
			m.scheduleReconnect(s)

		case *events.StreamReplaced:
			s.markDisconnected()
			m.publish(s, "stream_replaced", nil)
			m.log.Warn("stream replaced by another client", zap.String("session_id", s.ID))
			m.scheduleReconnect(s)

		case *events.LoggedOut:
			s.markLoggedOut()
			m.publish(s, "logged_out", map[string]interface{}{
				"on_connect": v.OnConnect,
				"reason":     int(v.Reason),
			})
			m.log.Warn("session logged out",
				zap.String("session_id", s.ID), zap.Bool("on_connect", v.OnConnect))

		case *events.Message:
			m.handleMessage(s, v)

		case *events.Receipt:
			status := "delivered"
			if v.Type == types.ReceiptTypeRead {
				status = "read"
			}
			m.publish(s, "receipt", map[string]interface{}{
				"chat":        v.Chat.ToNonAD().String(),
				"sender":      v.Sender.ToNonAD().String(),
				"message_ids": v.MessageIDs,
				"type":        status,
				"timestamp":   v.Timestamp,
			})

		case *events.Presence:
			m.publish(s, "presence", map[string]interface{}{
				"from":        v.From.ToNonAD().String(),
				"unavailable": v.Unavailable,
				"last_seen":   v.LastSeen,
			})

		case *events.PushName:
			jid := v.JID.ToNonAD().String()
			s.chats.Rename(jid, v.NewPushName)
			m.publish(s, "push_name", map[string]interface{}{
				"jid":       jid,
				"push_name": v.NewPushName,
			})

		case *events.HistorySync:
			m.handleHistorySync(s, v)

		case *events.AppStateSyncComplete:
			m.publish(s, "app_state_sync", map[string]interface{}{
				"name": string(v.Name),
			})
		}
	}
}

func (m *Manager) handleMessage(s *Session, v *events.Message) {
	msg := m.translateMessage(s, v)

	// Push names only name 1:1 chats; in groups they belong to the sender,
	// not the conversation.
	chatName := ""
	if !v.Info.IsFromMe && !v.Info.IsGroup {
		chatName = v.Info.PushName
	}
	s.chats.Add(msg, chatName)

	if dm, _, mimetype := downloadable(v.Message); dm != nil {
		go m.fetchMedia(s, v.Info.ID, dm, mimetype)
	}

	m.publish(s, "message", msg)
}

// translateMessage flattens a protocol message into the API shape.
func (m *Manager) translateMessage(s *Session, v *events.Message) Message {
	msg := Message{
		ID:        v.Info.ID,
		ChatJID:   v.Info.Chat.ToNonAD().String(),
		SenderJID: v.Info.Sender.ToNonAD().String(),
		PushName:  v.Info.PushName,
		FromMe:    v.Info.IsFromMe,
		Timestamp: v.Info.Timestamp,
		Type:      "text",
		Text:      extractText(v.Message),
	}

	if _, kind, mimetype := downloadable(v.Message); kind != "" {
		msg.Type = kind
		msg.Mimetype = mimetype
		msg.MediaID = v.Info.ID
		msg.MediaURL = fmt.Sprintf("%s/api/v1/sessions/%s/media/%s", m.cfg.BaseURL, s.ID, v.Info.ID)
	} else if v.Message.GetReactionMessage() != nil {
		msg.Type = "reaction"
	} else if msg.Text == "" {
		msg.Type = "unknown"
	}
	return msg
}

// extractText pulls the human-readable text out of the message variants the
// gateway understands. Proto getters are nil-safe, so the chain is too.
func extractText(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage().GetCaption() != "":
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage().GetCaption() != "":
		return msg.GetDocumentMessage().GetCaption()
	case msg.GetReactionMessage().GetText() != "":
		return msg.GetReactionMessage().GetText()
	}
	return ""
}

// downloadable returns the media part of a message, if any, with its kind
// and mimetype.
func downloadable(msg *waE2E.Message) (whatsmeow.DownloadableMessage, string, string) {
	switch {
	case msg == nil:
		return nil, "", ""
	case msg.GetImageMessage() != nil:
		im := msg.GetImageMessage()
		return im, "image", im.GetMimetype()
	case msg.GetVideoMessage() != nil:
		vm := msg.GetVideoMessage()
		return vm, "video", vm.GetMimetype()
	case msg.GetAudioMessage() != nil:
		am := msg.GetAudioMessage()
		return am, "audio", am.GetMimetype()
	case msg.GetDocumentMessage() != nil:
		dm := msg.GetDocumentMessage()
		return dm, "document", dm.GetMimetype()
	case msg.GetStickerMessage() != nil:
		sm := msg.GetStickerMessage()
		return sm, "sticker", sm.GetMimetype()
	}
	return nil, "", ""
}

// fetchMedia downloads inbound media into the session cache so the media
// endpoint can serve it.
func (m *Manager) fetchMedia(s *Session, id string, dm whatsmeow.DownloadableMessage, mimetype string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, err := s.client.Download(ctx, dm)
	if err != nil {
		m.log.Warn("media download failed",
			zap.String("session_id", s.ID),
			zap.String("media_id", id),
			zap.Error(err))
		return
	}
	s.storeMedia(id, data, mimetype)
	m.log.Debug("media cached",
		zap.String("session_id", s.ID),
		zap.String("media_id", id),
		zap.Int("bytes", len(data)))
}

func (m *Manager) handleHistorySync(s *Session, v *events.HistorySync) {
	convs := v.Data.GetConversations()
	msgCount := 0
	for _, conv := range convs {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, histMsg := range conv.GetMessages() {
			webMsg := histMsg.GetMessage()
			if webMsg == nil {
				continue
			}
			parsed, err := s.client.ParseWebMessage(chatJID, webMsg)
			if err != nil {
				continue
			}
			s.chats.Add(m.translateMessage(s, parsed), "")
			msgCount++
		}
		if name := conv.GetName(); name != "" {
			s.chats.Rename(chatJID.ToNonAD().String(), name)
		}
	}

	m.publish(s, "history_sync", map[string]interface{}{
		"conversations": len(convs),
		"messages":      msgCount,
	})
	m.log.Info("history sync processed",
		zap.String("session_id", s.ID),
		zap.Int("conversations", len(convs)),
		zap.Int("messages", msgCount))
}
