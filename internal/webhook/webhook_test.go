package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicolasppejo/wagate/internal/stream"
)

func testEvent(typ string) stream.Event {
	return stream.Event{
		SessionID: "s1",
		Type:      typ,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Data:      map[string]string{"text": "hi"},
	}
}

func newDispatcher(t *testing.T, s Settings) *Dispatcher {
	t.Helper()
	return NewDispatcher(filepath.Join(t.TempDir(), "webhook.json"), s, zap.NewNop())
}

func TestDeliverPostsSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	d := newDispatcher(t, Settings{URL: srv.URL, Secret: "topsecret"})
	d.Deliver(testEvent("message"))

	require.NotEmpty(t, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, Sign(gotBody, "topsecret"), gotSig)

	var payload stream.Event
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "s1", payload.SessionID)
	assert.Equal(t, "message", payload.Type)
}

func TestDeliverNoSecretNoSignature(t *testing.T) {
	var gotSig string
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotSig = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	d := newDispatcher(t, Settings{URL: srv.URL})
	d.Deliver(testEvent("message"))

	require.True(t, called)
	assert.Empty(t, gotSig)
}

func TestDeliverRespectsEventFilter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	d := newDispatcher(t, Settings{URL: srv.URL, Events: []string{"message"}})
	d.Deliver(testEvent("message"))
	d.Deliver(testEvent("receipt"))
	d.Deliver(testEvent("presence"))

	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliverNoURLIsNoop(t *testing.T) {
	d := newDispatcher(t, Settings{})
	d.Deliver(testEvent("message")) // must not panic or block
}

func TestTestReportsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	d := newDispatcher(t, Settings{URL: srv.URL})
	err := d.Test("s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTestBypassesFilter(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := newDispatcher(t, Settings{URL: srv.URL, Events: []string{"message"}})
	require.NoError(t, d.Test("s1"))
	assert.True(t, called)
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhook.json")
	d := NewDispatcher(path, Settings{}, zap.NewNop())

	want := Settings{URL: "https://hooks.example.com/wa", Secret: "k", Events: []string{"message"}}
	require.NoError(t, d.Update(want))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Settings
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, want, onDisk)

	// A fresh dispatcher picks the file up over its initial settings.
	d2 := NewDispatcher(path, Settings{URL: "http://ignored"}, zap.NewNop())
	assert.Equal(t, want, d2.Settings())
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	d := NewDispatcher(filepath.Join(t.TempDir(), "absent.json"), Settings{URL: "http://a"}, zap.NewNop())
	assert.Equal(t, "http://a", d.Settings().URL)
}
