package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := get(t, s, "/health_check")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctrl := register(t, s, "controller", "ops-1")
	agent := register(t, s, "", "H1")
	drain(t, ctrl.sess)
	drain(t, agent.sess)

	s.handleEnvelope(context.Background(), agent,
		[]byte(`{"type":"screenshot_data","imageData":"img"}`))
	s.handleEnvelope(context.Background(), ctrl,
		[]byte(`{"type":"chat_message","username":"C","message":"hi"}`))

	w := get(t, s, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status  string `json:"status"`
		Clients []struct {
			ID          string `json:"id"`
			Hostname    string `json:"hostname"`
			Role        string `json:"role"`
			HasSnapshot bool   `json:"hasSnapshot"`
		} `json:"clients"`
		ChatMessages int     `json:"chatMessages"`
		Uptime       float64 `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "online", body.Status)
	assert.Equal(t, 1, body.ChatMessages)
	require.Len(t, body.Clients, 2)

	byHost := map[string]bool{}
	for _, c := range body.Clients {
		byHost[c.Hostname] = c.HasSnapshot
		switch c.Hostname {
		case "ops-1":
			assert.Equal(t, "controller", c.Role)
		case "H1":
			assert.Equal(t, "agent", c.Role)
		}
	}
	assert.False(t, byHost["ops-1"])
	assert.True(t, byHost["H1"])
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t)
	ctrl := register(t, s, "controller", "ops-1")
	agent := register(t, s, "", "H1")
	drain(t, ctrl.sess)
	drain(t, agent.sess)

	w := get(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	html := w.Body.String()
	assert.Contains(t, html, "Session Broker")
	assert.Contains(t, html, "ops-1")
	assert.Contains(t, html, "H1")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
