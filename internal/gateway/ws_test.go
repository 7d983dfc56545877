package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/pennywise/internal/agent"
	"github.com/pennywise/pennywise/internal/llm"
)

func dialWebSocket(t *testing.T, srv *httptest.Server, headers http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, headers)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketMirrorsChatStream(t *testing.T) {
	client := &llm.MockClient{StreamFunc: llm.ScriptedStream(&llm.CompletionResponse{Content: "pong"})}
	s, _ := newTestServer(t, client)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWebSocket(t, srv, http.Header{headerUserID: []string{"u1"}})
	require.NoError(t, conn.WriteJSON(chatRequest{Messages: userTurnOf("ping")}))

	var types []string
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		if string(payload) == doneSentinel {
			break
		}
		var evt agent.Event
		require.NoError(t, json.Unmarshal(payload, &evt))
		types = append(types, evt.Type)
	}

	require.NotEmpty(t, types)
	assert.Equal(t, agent.EventStart, types[0])
	assert.Contains(t, types, agent.EventTextDelta)
	assert.Equal(t, agent.EventFinish, types[len(types)-1])
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	s, _ := newTestServer(t, &llm.MockClient{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
