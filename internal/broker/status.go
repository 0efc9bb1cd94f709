package broker

import (
	_ "embed"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/remoteview/broker/pkg/version"
	"github.com/remoteview/broker/pkg/wire"
)

//go:embed templates/index.html.tmpl
var indexTemplate string

var indexTmpl = template.Must(
	template.New("index").Funcs(sprig.HtmlFuncMap()).Parse(indexTemplate))

type indexClient struct {
	Role        string
	Hostname    string
	ConnectedAt time.Time
}

type indexData struct {
	Version      string
	Port         int
	Sessions     int
	Agents       int
	Controllers  int
	ChatMessages int
	Uptime       string
	Clients      []indexClient
}

// statusClient is one entry of the machine-readable status endpoint.
type statusClient struct {
	ID          string    `json:"id"`
	Hostname    string    `json:"hostname"`
	Role        string    `json:"role"`
	ConnectedAt time.Time `json:"connectedAt"`
	HasSnapshot bool      `json:"hasSnapshot"`
}

// handleIndex renders the human-readable overview page. Read-only: it only
// consumes registry and history snapshots.
func (s *Server) handleIndex(c *gin.Context) {
	conns, err := s.sessions.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list sessions for index page", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}

	data := indexData{
		Version:      version.Get(),
		Port:         s.port,
		Sessions:     len(conns),
		ChatMessages: s.history.Len(),
		Uptime:       time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	for _, conn := range conns {
		meta := conn.Meta()
		if meta.Role == wire.RoleController {
			data.Controllers++
		} else {
			data.Agents++
		}
		data.Clients = append(data.Clients, indexClient{
			Role:        meta.Role.String(),
			Hostname:    meta.Hostname,
			ConnectedAt: meta.ConnectedAt,
		})
	}
	sort.Slice(data.Clients, func(i, j int) bool {
		return data.Clients[i].ConnectedAt.Before(data.Clients[j].ConnectedAt)
	})

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(c.Writer, data); err != nil {
		s.logger.Error("failed to render index page", zap.Error(err))
	}
}

// handleStatus serves the machine-readable broker status.
func (s *Server) handleStatus(c *gin.Context) {
	conns, err := s.sessions.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list sessions for status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	clients := make([]statusClient, 0, len(conns))
	for _, conn := range conns {
		meta := conn.Meta()
		clients = append(clients, statusClient{
			ID:          meta.ID,
			Hostname:    meta.Hostname,
			Role:        meta.Role.String(),
			ConnectedAt: meta.ConnectedAt,
			HasSnapshot: conn.HasSnapshot(),
		})
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ConnectedAt.Before(clients[j].ConnectedAt)
	})

	c.JSON(http.StatusOK, gin.H{
		"status":       "online",
		"clients":      clients,
		"chatMessages": s.history.Len(),
		"uptime":       time.Since(s.startedAt).Seconds(),
	})
}
