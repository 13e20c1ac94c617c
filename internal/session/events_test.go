package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func textEvent(id, chat, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID(chat, types.DefaultUserServer),
				Sender: types.NewJID(chat, types.DefaultUserServer),
			},
			ID:        id,
			PushName:  "Alice",
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestTranslateTextMessage(t *testing.T) {
	m := newTestManager(t)
	s := newSession("s1", nil, nil, 10)

	msg := m.translateMessage(s, textEvent("MSG1", "5511999998888", "hello"))

	assert.Equal(t, "MSG1", msg.ID)
	assert.Equal(t, "5511999998888@s.whatsapp.net", msg.ChatJID)
	assert.Equal(t, "5511999998888@s.whatsapp.net", msg.SenderJID)
	assert.Equal(t, "Alice", msg.PushName)
	assert.False(t, msg.FromMe)
	assert.Equal(t, "text", msg.Type)
	assert.Equal(t, "hello", msg.Text)
	assert.Empty(t, msg.MediaID)
}

func TestTranslateImageMessage(t *testing.T) {
	m := newTestManager(t)
	s := newSession("s1", nil, nil, 10)

	ev := textEvent("IMG1", "5511999998888", "")
	ev.Message = &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:  proto.String("look at this"),
			Mimetype: proto.String("image/jpeg"),
		},
	}

	msg := m.translateMessage(s, ev)
	assert.Equal(t, "image", msg.Type)
	assert.Equal(t, "look at this", msg.Text)
	assert.Equal(t, "image/jpeg", msg.Mimetype)
	assert.Equal(t, "IMG1", msg.MediaID)
	assert.Equal(t, "http://localhost:7030/api/v1/sessions/s1/media/IMG1", msg.MediaURL)
}

func TestTranslateExtendedText(t *testing.T) {
	m := newTestManager(t)
	s := newSession("s1", nil, nil, 10)

	ev := textEvent("EXT1", "5511999998888", "")
	ev.Message = &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked text")},
	}

	msg := m.translateMessage(s, ev)
	assert.Equal(t, "text", msg.Type)
	assert.Equal(t, "linked text", msg.Text)
}

func TestTranslateUnknownPayload(t *testing.T) {
	m := newTestManager(t)
	s := newSession("s1", nil, nil, 10)

	ev := textEvent("U1", "5511999998888", "")
	ev.Message = &waE2E.Message{}

	msg := m.translateMessage(s, ev)
	assert.Equal(t, "unknown", msg.Type)
	assert.Empty(t, msg.Text)
}

func TestExtractText(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("plain")}, "plain"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("ext")}}, "ext"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("cap")}}, "cap"},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("vid")}}, "vid"},
		{"reaction", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{Text: proto.String("👍")}}, "👍"},
		{"empty", &waE2E.Message{}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractText(tc.msg))
		})
	}
}

func TestDownloadableKinds(t *testing.T) {
	dm, kind, mime := downloadable(&waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/png")},
	})
	assert.NotNil(t, dm)
	assert.Equal(t, "image", kind)
	assert.Equal(t, "image/png", mime)

	dm, kind, _ = downloadable(&waE2E.Message{Conversation: proto.String("hi")})
	assert.Nil(t, dm)
	assert.Empty(t, kind)

	dm, kind, mime = downloadable(&waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{Mimetype: proto.String("application/pdf")},
	})
	assert.NotNil(t, dm)
	assert.Equal(t, "document", kind)
	assert.Equal(t, "application/pdf", mime)
}

func TestHandleMessageCachesAndStreams(t *testing.T) {
	m := newTestManager(t)
	s := newSession("s1", nil, nil, 10)
	m.sessions["s1"] = s

	sub := s.Hub().Subscribe()
	defer s.Hub().Unsubscribe(sub)

	m.handleMessage(s, textEvent("MSG1", "5511999998888", "hello"))

	cached := s.Chats().Messages("5511999998888@s.whatsapp.net", 10)
	require.Len(t, cached, 1)
	assert.Equal(t, "hello", cached[0].Text)

	chats := s.Chats().Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "Alice", chats[0].Name, "1:1 chats take the sender's push name")

	ev := <-sub.Events()
	assert.Equal(t, "message", ev.Type)
	streamed, ok := ev.Data.(Message)
	require.True(t, ok)
	assert.Equal(t, "MSG1", streamed.ID)
}

func TestHandleMessageGroupKeepsChatUnnamed(t *testing.T) {
	m := newTestManager(t)
	s := newSession("s1", nil, nil, 10)

	ev := textEvent("G1", "", "hey group")
	ev.Info.Chat = types.NewJID("123456-7890", types.GroupServer)
	ev.Info.Sender = types.NewJID("5511999998888", types.DefaultUserServer)
	ev.Info.IsGroup = true

	m.handleMessage(s, ev)

	chats := s.Chats().Chats()
	require.Len(t, chats, 1)
	assert.Empty(t, chats[0].Name, "push name must not become a group subject")
}
