package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeepgramMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
		ok      bool
	}{
		{
			name:    "final transcript",
			payload: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world","confidence":0.98}]}}`,
			want:    Event{Kind: KindFinal, Text: "hello world"},
			ok:      true,
		},
		{
			name:    "interim transcript",
			payload: `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]}}`,
			want:    Event{Kind: KindInterim, Text: "hel"},
			ok:      true,
		},
		{
			name:    "empty transcript skipped",
			payload: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
			ok:      false,
		},
		{
			name:    "metadata skipped",
			payload: `{"type":"Metadata","request_id":"abc"}`,
			ok:      false,
		},
		{
			name:    "invalid json skipped",
			payload: `{not json`,
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseDeepgramMessage([]byte(tt.payload))
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ev)
			}
		})
	}
}

// fakeDeepgram upgrades the connection, emits one final result, then
// consumes whatever the client writes until the connection drops.
func fakeDeepgram(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		require.Equal(t, "linear16", r.URL.Query().Get("encoding"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		msg := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hola","confidence":0.9}]}}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestDeepgramStreamLifecycle(t *testing.T) {
	server := fakeDeepgram(t)
	defer server.Close()

	engine := NewDeepgramEngine("test-key", "nova-2")
	engine.BaseURL = "ws" + strings.TrimPrefix(server.URL, "http")

	stream, err := engine.NewStream(context.Background(), StreamConfig{SampleRate: 16000, Channels: 1})
	require.NoError(t, err)

	require.NoError(t, stream.Push(make([]byte, 320)))

	select {
	case ev := <-stream.Events():
		assert.Equal(t, KindFinal, ev.Kind)
		assert.Equal(t, "hola", ev.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript event")
	}

	// Close must be idempotent.
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	assert.ErrorIs(t, stream.Push(make([]byte, 320)), ErrClosed)
}
