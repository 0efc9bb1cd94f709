package broker

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/remoteview/broker/internal/broker/session"
	"github.com/remoteview/broker/pkg/wire"
)

// Broadcast scopes, used for logging and metrics labels.
const (
	scopeAll         = "all"
	scopeControllers = "controllers"
	scopeUnicast     = "unicast"
)

func allSessions(session.Connection) bool { return true }

func controllersOnly(c session.Connection) bool {
	return c.Meta().Role == wire.RoleController
}

func agentsOnly(c session.Connection) bool {
	return c.Meta().Role == wire.RoleAgent
}

// broadcast delivers one envelope to every connection matching the
// predicate. It iterates a point-in-time snapshot of the registry, so a
// disconnect mid-broadcast cannot disturb the loop, and a failed delivery
// to one recipient never aborts delivery to the rest.
func (s *Server) broadcast(ctx context.Context, match func(session.Connection) bool, scope, msgType string, data any) {
	payload, err := json.Marshal(wire.Envelope{Type: msgType, Data: data})
	if err != nil {
		s.logger.Error("failed to marshal broadcast envelope",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}

	conns, err := s.sessions.List(ctx)
	if err != nil {
		s.logger.Error("failed to list sessions for broadcast",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}

	for _, conn := range conns {
		if !match(conn) {
			continue
		}
		if err := conn.Send(ctx, &session.Message{Event: "message", Data: payload}); err != nil {
			s.logger.Warn("skipping recipient",
				zap.String("id", conn.Meta().ID),
				zap.String("type", msgType),
				zap.Error(err))
			if s.metrics != nil {
				s.metrics.DeliveryFailed(scope)
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.DeliveryOK(scope)
		}
	}
}

// unicast delivers one envelope to a single session.
func (s *Server) unicast(ctx context.Context, conn session.Connection, msgType string, data any) error {
	payload, err := json.Marshal(wire.Envelope{Type: msgType, Data: data})
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, &session.Message{Event: "message", Data: payload}); err != nil {
		if s.metrics != nil {
			s.metrics.DeliveryFailed(scopeUnicast)
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.DeliveryOK(scopeUnicast)
	}
	return nil
}

// broadcastDirectory pushes the current agent roster to all controllers.
func (s *Server) broadcastDirectory(ctx context.Context) {
	conns, err := s.sessions.List(ctx)
	if err != nil {
		s.logger.Error("failed to list sessions for directory update", zap.Error(err))
		return
	}

	hosts := make([]wire.HostEntry, 0, len(conns))
	for _, conn := range conns {
		if !agentsOnly(conn) {
			continue
		}
		meta := conn.Meta()
		hosts = append(hosts, wire.HostEntry{
			ID:          meta.ID,
			Hostname:    meta.Hostname,
			ConnectedAt: meta.ConnectedAt,
		})
	}

	s.broadcast(ctx, controllersOnly, scopeControllers, wire.TypeHostnamesUpdate, hosts)
}
