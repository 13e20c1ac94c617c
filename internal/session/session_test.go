package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecipient(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare number", "5511999998888", "5511999998888@s.whatsapp.net", false},
		{"formatted number", "+55 (11) 99999-8888", "5511999998888@s.whatsapp.net", false},
		{"full user jid", "5511999998888@s.whatsapp.net", "5511999998888@s.whatsapp.net", false},
		{"group jid", "123456789-987654@g.us", "123456789-987654@g.us", false},
		{"empty", "", "", true},
		{"letters only", "notanumber", "", true},
		{"too short", "123", "", true},
		{"missing user", "@s.whatsapp.net", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jid, err := ParseRecipient(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, jid.String())
		})
	}
}

func TestSessionStateTransitions(t *testing.T) {
	s := newSession("s1", nil, nil, 10)

	info := s.Info()
	assert.Equal(t, "s1", info.ID)
	assert.False(t, info.Connected)
	assert.False(t, info.QRAvailable)

	_, err := s.QR()
	assert.ErrorIs(t, err, ErrNoQRCode)

	s.setQR("2@pairing-code")
	code, err := s.QR()
	require.NoError(t, err)
	assert.Equal(t, "2@pairing-code", code)
	assert.True(t, s.Info().QRAvailable)

	s.markConnected()
	info = s.Info()
	assert.True(t, info.Connected)
	assert.False(t, info.LoggedOut)
	assert.NotNil(t, info.ConnectedAt)
	assert.False(t, info.QRAvailable, "pairing code is cleared on connect")

	_, err = s.QR()
	assert.ErrorIs(t, err, ErrAlreadyPaired)

	s.markDisconnected()
	assert.False(t, s.Info().Connected)
	assert.True(t, s.reconnectable())

	s.markLoggedOut()
	info = s.Info()
	assert.True(t, info.LoggedOut)
	assert.False(t, s.reconnectable(), "logged-out sessions must not auto-reconnect")
}

func TestStopSuppressesReconnect(t *testing.T) {
	s := newSession("s1", nil, nil, 10)
	assert.True(t, s.reconnectable())
	s.stop()
	assert.False(t, s.reconnectable())
}

func TestMediaCache(t *testing.T) {
	s := newSession("s1", nil, nil, 10)

	_, _, ok := s.Media("nope")
	assert.False(t, ok)

	s.storeMedia("m1", []byte("bytes"), "image/jpeg")
	data, mime, ok := s.Media("m1")
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), data)
	assert.Equal(t, "image/jpeg", mime)

	// Same ID is not overwritten.
	s.storeMedia("m1", []byte("other"), "image/png")
	data, mime, _ = s.Media("m1")
	assert.Equal(t, []byte("bytes"), data)
	assert.Equal(t, "image/jpeg", mime)
}

func TestMediaCacheEviction(t *testing.T) {
	s := newSession("s1", nil, nil, 10)

	for i := 0; i < mediaCacheCap+5; i++ {
		s.storeMedia(fmt.Sprintf("m%d", i), []byte{byte(i)}, "image/jpeg")
	}

	for i := 0; i < 5; i++ {
		_, _, ok := s.Media(fmt.Sprintf("m%d", i))
		assert.False(t, ok, "m%d should have been evicted", i)
	}
	_, _, ok := s.Media(fmt.Sprintf("m%d", mediaCacheCap+4))
	assert.True(t, ok)

	s.mu.RLock()
	assert.Len(t, s.media, mediaCacheCap)
	s.mu.RUnlock()
}
