package broker

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteview/broker/pkg/wire"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env wire.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebSocketSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctrl := dialWS(t, srv)
	require.NoError(t, ctrl.WriteJSON(map[string]any{
		"type": "register", "hostname": "ops-1", "role": "controller",
	}))

	env := readEnvelope(t, ctrl)
	require.Equal(t, wire.TypeRegistered, env.Type)
	ctrlID := env.Data.(map[string]any)["id"].(string)
	assert.NotEmpty(t, ctrlID)

	require.Equal(t, wire.TypeChatHistory, readEnvelope(t, ctrl).Type)
	require.Equal(t, wire.TypeHostnamesUpdate, readEnvelope(t, ctrl).Type)

	agent := dialWS(t, srv)
	require.NoError(t, agent.WriteJSON(map[string]any{
		"type": "register", "hostname": "H1",
	}))
	require.Equal(t, wire.TypeRegistered, readEnvelope(t, agent).Type)

	// the agent showing up refreshes the controller's directory
	env = readEnvelope(t, ctrl)
	require.Equal(t, wire.TypeHostnamesUpdate, env.Type)
	dir := env.Data.([]any)
	require.Len(t, dir, 1)
	assert.Equal(t, "H1", dir[0].(map[string]any)["hostname"])

	// chat reaches both peers, sender included
	require.NoError(t, ctrl.WriteJSON(map[string]any{
		"type": "chat_message", "username": "C", "message": "hello",
	}))
	for _, conn := range []*websocket.Conn{ctrl, agent} {
		env = readEnvelope(t, conn)
		require.Equal(t, wire.TypeChatMessage, env.Type)
		assert.Equal(t, "hello", env.Data.(map[string]any)["message"])
	}

	// agent departure: disconnect notice, then an empty directory
	require.NoError(t, agent.Close())

	env = readEnvelope(t, ctrl)
	require.Equal(t, wire.TypeClientDisconnected, env.Type)
	assert.Equal(t, "H1", env.Data.(map[string]any)["hostname"])

	env = readEnvelope(t, ctrl)
	require.Equal(t, wire.TypeHostnamesUpdate, env.Type)
	assert.Empty(t, env.Data.([]any))
}

func TestWebSocketPingBeforeRegistration(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var pong wire.Pong
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, wire.TypePong, pong.Type)
	assert.Positive(t, pong.Timestamp)
}

func TestWebSocketCommandRoundTrip(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	agent := dialWS(t, srv)
	require.NoError(t, agent.WriteJSON(map[string]any{
		"type": "register", "hostname": "H1",
	}))
	env := readEnvelope(t, agent)
	require.Equal(t, wire.TypeRegistered, env.Type)
	agentID := env.Data.(map[string]any)["id"].(string)

	ctrl := dialWS(t, srv)
	require.NoError(t, ctrl.WriteJSON(map[string]any{
		"type": "register", "hostname": "ops-1", "role": "controller",
	}))
	require.Equal(t, wire.TypeRegistered, readEnvelope(t, ctrl).Type)
	require.Equal(t, wire.TypeChatHistory, readEnvelope(t, ctrl).Type)
	require.Equal(t, wire.TypeHostnamesUpdate, readEnvelope(t, ctrl).Type)

	require.NoError(t, ctrl.WriteJSON(map[string]any{
		"type": "execute_command", "targetId": agentID,
		"command": "hostname", "commandType": "powershell", "requestId": 42,
	}))

	env = readEnvelope(t, agent)
	require.Equal(t, wire.TypeExecuteCommand, env.Type)
	dispatch := env.Data.(map[string]any)
	assert.Equal(t, "hostname", dispatch["command"])
	assert.Equal(t, wire.CommandTypePowershell, dispatch["commandType"])
	assert.Equal(t, float64(42), dispatch["requestId"])

	require.NoError(t, agent.WriteJSON(map[string]any{
		"type": "command_result", "requestId": 42,
		"result": "H1", "success": true, "commandType": "powershell",
	}))

	env = readEnvelope(t, ctrl)
	require.Equal(t, wire.TypeCommandResult, env.Type)
	res := env.Data.(map[string]any)
	assert.Equal(t, agentID, res["clientId"])
	assert.Equal(t, "H1", res["hostname"])
	assert.Equal(t, true, res["success"])
}
